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

package driver

// labels is a map of key value pairs to be included as metadata in a storage object.
type labels map[string]string

func (lbs *labels) init()                   { *lbs = labels(make(map[string]string)) }
func (lbs labels) get(key string) string    { return lbs[key] }
func (lbs labels) set(key, val string)      { lbs[key] = val }
func (lbs labels) toMap() map[string]string { return lbs }

func (lbs labels) keys() (ls []string) {
	for key := range lbs {
		ls = append(ls, key)
	}
	return
}

// match reports whether every pair in set is present in lbs.
func (lbs labels) match(set labels) bool {
	for _, key := range set.keys() {
		if v, ok := lbs[key]; !ok || v != set.get(key) {
			return false
		}
	}
	return true
}

func (lbs *labels) fromMap(kvs map[string]string) {
	for k, v := range kvs {
		lbs.set(k, v)
	}
}
