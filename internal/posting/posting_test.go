package posting

import "testing"

func strptr(s string) *string { return &s }

func TestHasIdentity(t *testing.T) {
	cases := []struct {
		name    string
		posting JobPosting
		want    bool
	}{
		{"both set", JobPosting{CompanyName: strptr("Acme"), PositionTitle: strptr("Engineer")}, true},
		{"company only", JobPosting{CompanyName: strptr("Acme")}, true},
		{"title only", JobPosting{PositionTitle: strptr("Engineer")}, true},
		{"both nil", JobPosting{}, false},
		{"blank strings", JobPosting{CompanyName: strptr("  "), PositionTitle: strptr("")}, false},
		{"other fields do not count", JobPosting{Location: strptr("Helsinki"), Salary: strptr("5000")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.posting.HasIdentity(); got != tc.want {
				t.Fatalf("HasIdentity() = %v, want %v", got, tc.want)
			}
		})
	}
}
