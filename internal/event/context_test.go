package event

import "testing"

func TestExtractContext(t *testing.T) {
	tests := []struct {
		name        string
		payload     map[string]interface{}
		wantCompany string
		wantMember  string
	}{
		{
			name:        "top level camelCase",
			payload:     map[string]interface{}{"companyId": "cmp_1", "memberId": "mem_1"},
			wantCompany: "cmp_1",
			wantMember:  "mem_1",
		},
		{
			name:        "top level snake_case",
			payload:     map[string]interface{}{"company_id": "cmp_2", "member_id": "mem_2"},
			wantCompany: "cmp_2",
			wantMember:  "mem_2",
		},
		{
			name: "member object form",
			payload: map[string]interface{}{
				"companyId": "cmp_3",
				"member":    map[string]interface{}{"id": "mem_3", "email": "m@example.com"},
			},
			wantCompany: "cmp_3",
			wantMember:  "mem_3",
		},
		{
			name: "account object form",
			payload: map[string]interface{}{
				"account":  map[string]interface{}{"id": "cmp_4"},
				"memberId": "mem_4",
			},
			wantCompany: "cmp_4",
			wantMember:  "mem_4",
		},
		{
			name: "payment family nested under data",
			payload: map[string]interface{}{
				"data": map[string]interface{}{
					"company_id": "cmp_5",
					"member":     map[string]interface{}{"id": "mem_5"},
				},
			},
			wantCompany: "cmp_5",
			wantMember:  "mem_5",
		},
		{
			name:        "missing member",
			payload:     map[string]interface{}{"companyId": "cmp_6"},
			wantCompany: "cmp_6",
			wantMember:  "",
		},
		{
			name: "malformed types do not panic",
			payload: map[string]interface{}{
				"companyId": 42,
				"member":    "not-an-object",
				"data":      []interface{}{"junk"},
			},
			wantCompany: "",
			wantMember:  "",
		},
		{
			name:        "nil payload",
			payload:     nil,
			wantCompany: "",
			wantMember:  "",
		},
		{
			name:        "empty payload",
			payload:     map[string]interface{}{},
			wantCompany: "",
			wantMember:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractContext(tt.payload)
			if got.CompanyID != tt.wantCompany {
				t.Errorf("CompanyID = %q, want %q", got.CompanyID, tt.wantCompany)
			}
			if got.MemberID != tt.wantMember {
				t.Errorf("MemberID = %q, want %q", got.MemberID, tt.wantMember)
			}
		})
	}
}

func TestContextComplete(t *testing.T) {
	if (Context{CompanyID: "c", MemberID: ""}).Complete() {
		t.Error("missing member should not be complete")
	}
	if !(Context{CompanyID: "c", MemberID: "m"}).Complete() {
		t.Error("both ids present should be complete")
	}
}
