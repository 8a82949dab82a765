package credential

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseAccount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Account
		wantErr bool
	}{
		{"lowercase", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"uppercase", "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"checksum", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"checksum 2", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359", false},
		{"surrounding space", "  0xdbf03b407c01e7cd3cbea99509d93f8dddc8c6fb ", "0xdbf03b407c01e7cd3cbea99509d93f8dddc8c6fb", false},
		{"bad checksum", "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "", true},
		{"short", "0x1234", "", true},
		{"no prefix", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "", true},
		{"non hex", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaez", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAccount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAccount(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAccount(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAccountChecksum(t *testing.T) {
	for _, s := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		a := Account(strings.ToLower(s))
		if got := a.Checksum(); got != s {
			t.Errorf("Checksum(%s) = %s, want %s", a, got, s)
		}
	}
}

func TestAccountValidate(t *testing.T) {
	if err := Account("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed").Validate(); err != nil {
		t.Errorf("canonical account rejected: %v", err)
	}
	if err := Account("0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED").Validate(); err == nil {
		t.Error("non-canonical account accepted")
	}
	if err := Account("").Validate(); err == nil {
		t.Error("empty account accepted")
	}
}

func TestAccountUnmarshalJSON(t *testing.T) {
	var v struct {
		A Account `json:"a"`
	}
	if err := json.Unmarshal([]byte(`{"a":"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.A != "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed" {
		t.Errorf("A = %q", v.A)
	}
	if err := json.Unmarshal([]byte(`{"a":"0xnothex"}`), &v); err != nil {
		t.Fatalf("malformed account must decode: %v", err)
	}
	if v.A != "0xnothex" || v.A.Validate() == nil {
		t.Errorf("A = %q should be kept verbatim and fail Validate", v.A)
	}
	if err := json.Unmarshal([]byte(`{"a":7}`), &v); err == nil {
		t.Error("expected error for a non-string account")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("teacher"); err != nil || r != RoleTeacher {
		t.Errorf("ParseRole(teacher) = %q, %v", r, err)
	}
	if r, err := ParseRole(" ISSUER "); err != nil || r != RoleIssuer {
		t.Errorf("ParseRole(ISSUER) = %q, %v", r, err)
	}
	if _, err := ParseRole("student"); err == nil {
		t.Error("STUDENT is not a role")
	}
}

func TestScope(t *testing.T) {
	all := AllCourses()
	one := ForCourse(3)

	if !all.Covers(1) || !all.Covers(99) {
		t.Error("all-courses scope should cover every course")
	}
	if !one.Covers(3) || one.Covers(4) {
		t.Error("course scope should cover only its course")
	}
	if !all.Valid() || !one.Valid() || (Scope{}).Valid() || (Scope{All: true, CourseID: 2}).Valid() {
		t.Error("Valid mismatch")
	}

	for in, want := range map[string]Scope{"all": all, "ALL": all, "": all, "3": one} {
		got, err := ParseScope(in)
		if err != nil || got != want {
			t.Errorf("ParseScope(%q) = %+v, %v", in, got, err)
		}
	}
	for _, in := range []string{"0", "-1", "x"} {
		if _, err := ParseScope(in); err == nil {
			t.Errorf("ParseScope(%q) should fail", in)
		}
	}
}

func TestDigestContent(t *testing.T) {
	got, err := DigestContent(strings.NewReader("abc"))
	if err != nil {
		t.Fatal(err)
	}
	want := "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("DigestContent = %s, want %s", got, want)
	}
	if err := ValidateContentHash(got); err != nil {
		t.Errorf("digest should validate: %v", err)
	}
}

func TestValidateContentHash(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", false},
		{"", true},
		{"has space", true},
		{"tab\there", true},
		{strings.Repeat("a", MaxContentHashLen), false},
		{strings.Repeat("a", MaxContentHashLen+1), true},
	}
	for _, tt := range tests {
		if err := ValidateContentHash(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("ValidateContentHash(%.20q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestEventAttributes(t *testing.T) {
	scope := ForCourse(2)
	ev := &Event{Seq: 4, Type: EventIssuerDelegated, CourseID: 2, Scope: &scope}
	attrs := ev.Attributes()
	if attrs["type"] != "IssuerDelegated" || attrs["seq"] != int64(4) || attrs["scope"] != "2" {
		t.Errorf("attributes = %v", attrs)
	}
	if _, ok := attrs["student"]; !ok {
		t.Error("unset fields should still be present")
	}
}
