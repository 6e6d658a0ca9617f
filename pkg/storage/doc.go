/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package storage implements storage for release objects.

Releases are versioned records keyed by name and revision. The backend
storage mechanism may be implemented with different backends (see the
driver subpackage). Storage builds the object keys, enforces the history
limit and answers the history and status queries on top of a Driver.
*/
package storage // import "helm.sh/release-store/pkg/storage"
