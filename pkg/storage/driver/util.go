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

package driver // import "helm.sh/release-store/pkg/storage/driver"

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	kblabels "k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/validation"

	rspb "helm.sh/release-store/pkg/release"
)

var b64 = base64.StdEncoding

const (
	// releaseDataKey is the data entry holding the encoded release.
	releaseDataKey = "release"
	// releaseObjectType is the <domain>/<object>.v<version> marker put on
	// typed storage objects.
	releaseObjectType = "helm.sh/release.v1"
	// owner is the value of the "owner" label on every stored release.
	owner = "helm"
)

var systemLabels = []string{"name", "owner", "status", "version", "createdAt", "modifiedAt"}

// decodeMode tells decodeRelease whether the bytes it is handed still
// carry the base64 layer.
type decodeMode int

const (
	// decodeBase64 is for payloads stored as base64 text.
	decodeBase64 decodeMode = iota
	// decodeRaw is for payloads the client already base64 decoded.
	decodeRaw
)

// encodeReleaseBytes returns the gzipped JSON encoding of a release.
func encodeReleaseBytes(rls *rspb.Release) ([]byte, error) {
	b, err := json.Marshal(rls)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err = w.Write(b); err != nil {
		return nil, &EncodeError{Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &EncodeError{Err: err}
	}
	return buf.Bytes(), nil
}

// encodeRelease encodes a release returning a base64 encoded
// gzipped string representation, or error.
func encodeRelease(rls *rspb.Release) (string, error) {
	b, err := encodeReleaseBytes(rls)
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(b), nil
}

// decodeRelease decodes the bytes of data into a release type. In
// decodeBase64 mode data must be the base64 text produced by
// encodeRelease; in decodeRaw mode it must be the gzipped bytes produced
// by encodeReleaseBytes.
func decodeRelease(data []byte, mode decodeMode) (*rspb.Release, error) {
	b := data
	if mode == decodeBase64 {
		b = make([]byte, b64.DecodedLen(len(data)))
		n, err := b64.Decode(b, data)
		if err != nil {
			return nil, &DecodeError{Step: DecodeStepBase64, Err: err}
		}
		b = b[:n]
	}

	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, &DecodeError{Step: DecodeStepGzip, Err: err}
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &DecodeError{Step: DecodeStepGzip, Err: err}
	}

	var rls rspb.Release
	if err := json.Unmarshal(raw, &rls); err != nil {
		return nil, &DecodeError{Step: DecodeStepJSON, Err: err}
	}
	return &rls, nil
}

// releaseLabels applies the labels every stored release carries.
//
//	"name"    - name of the release.
//	"owner"   - owner of the object, currently "helm".
//	"status"  - status of the release (see pkg/release/status.go for variants)
//	"version" - version of the release.
func releaseLabels(lbs labels, rls *rspb.Release) labels {
	if lbs == nil {
		lbs.init()
	}
	lbs.set("name", rls.Name)
	lbs.set("owner", owner)
	lbs.set("status", rls.CurrentStatus().String())
	lbs.set("version", strconv.Itoa(rls.Version))
	return lbs
}

// labelSelector renders kvs as a label selector string. Keys come out
// sorted, so equal maps always produce equal selectors.
func labelSelector(kvs map[string]string) (string, error) {
	ls := kblabels.Set{}
	for k, v := range kvs {
		if errs := validation.IsValidLabelValue(v); len(errs) != 0 {
			return "", errors.WithMessagef(ErrMalformedData, "invalid label value %q: %s", v, strings.Join(errs, "; "))
		}
		ls[k] = v
	}
	return ls.AsSelector().String(), nil
}

// ownerSelector selects every object written by this package.
var ownerSelector = kblabels.Set{"owner": owner}.AsSelector().String()

// isSystemLabel reports whether key is one of the labels managed by the
// drivers themselves.
func isSystemLabel(key string) bool {
	for _, l := range systemLabels {
		if l == key {
			return true
		}
	}
	return false
}

// GetSystemLabels returns the labels managed by the drivers.
func GetSystemLabels() []string {
	return append([]string(nil), systemLabels...)
}
