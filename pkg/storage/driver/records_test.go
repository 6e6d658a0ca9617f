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

import (
	"reflect"
	"testing"

	rspb "helm.sh/release-store/pkg/release"
)

func TestRecordsAdd(t *testing.T) {
	rs := records([]*record{
		newRecord("rls-a.v1", releaseStub("rls-a", 1, "default", rspb.StatusSuperseded)),
		newRecord("rls-a.v2", releaseStub("rls-a", 2, "default", rspb.StatusDeployed)),
	})

	var tests = []struct {
		desc string
		key  string
		ok   bool
		rec  *record
	}{
		{
			"add valid key",
			"rls-a.v3",
			false,
			newRecord("rls-a.v3", releaseStub("rls-a", 3, "default", rspb.StatusSuperseded)),
		},
		{
			"add already existing key",
			"rls-a.v1",
			true,
			newRecord("rls-a.v1", releaseStub("rls-a", 1, "default", rspb.StatusDeployed)),
		},
	}

	for _, tt := range tests {
		if err := rs.Add(tt.rec); err != nil {
			if !tt.ok {
				t.Fatalf("failed: %q: %s\n", tt.desc, err)
			}
		}
	}
	if len(rs) != 3 {
		t.Errorf("Expected 3 records, got %d", len(rs))
	}
}

func TestRecordsSortedByVersion(t *testing.T) {
	var rs records
	for _, v := range []int{3, 1, 4, 2} {
		if err := rs.Add(newRecord(testKey("rls-a", v), releaseStub("rls-a", v, "default", rspb.StatusSuperseded))); err != nil {
			t.Fatal(err)
		}
	}

	var got []int
	rs.Iter(func(_ int, r *record) bool {
		got = append(got, r.rls.Version)
		return true
	})
	if !reflect.DeepEqual(got, []int{1, 2, 3, 4}) {
		t.Errorf("Expected ascending versions, got %v", got)
	}
}

func TestRecordsRemove(t *testing.T) {
	var tests = []struct {
		desc string
		key  string
		ok   bool
	}{
		{"remove valid key", "rls-a.v1", false},
		{"remove invalid key", "rls-a.v", true},
		{"remove non-existent key", "rls-z.v1", true},
	}

	rs := records([]*record{
		newRecord("rls-a.v1", releaseStub("rls-a", 1, "default", rspb.StatusSuperseded)),
		newRecord("rls-a.v2", releaseStub("rls-a", 2, "default", rspb.StatusDeployed)),
	})

	for _, tt := range tests {
		if r := rs.Remove(tt.key); r == nil {
			if !tt.ok {
				t.Fatalf("Failed to %q (key = %s). Expected nil, got %v",
					tt.desc,
					tt.key,
					r,
				)
			}
		}
	}
	if len(rs) != 1 || rs[0].key != "rls-a.v2" {
		t.Errorf("Expected only rls-a.v2 to remain, got %d records", len(rs))
	}
}

func TestRecordsReplace(t *testing.T) {
	rs := records([]*record{
		newRecord("rls-a.v1", releaseStub("rls-a", 1, "default", rspb.StatusDeployed)),
	})

	replaced := newRecord("rls-a.v1", releaseStub("rls-a", 1, "default", rspb.StatusSuperseded))
	if old := rs.Replace("rls-a.v1", replaced); old == nil || old.rls.Info.Status != rspb.StatusDeployed {
		t.Fatalf("Expected the deployed record back, got %v", old)
	}
	if rs.Get("rls-a.v1").lbs.get("status") != "superseded" {
		t.Errorf("Expected replaced labels, got %v", rs.Get("rls-a.v1").lbs)
	}
	if rs.Replace("rls-a.v9", replaced) != nil {
		t.Error("Expected nil when replacing a missing key")
	}
}
