package organisation

import "testing"

func TestOrganisation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		org     Organisation
		wantErr bool
	}{
		{"valid", Organisation{Name: "Leeds SAIS", ODSCode: "RR8"}, false},
		{"missing name", Organisation{ODSCode: "RR8"}, true},
		{"lowercase ods", Organisation{Name: "Leeds SAIS", ODSCode: "rr8"}, true},
		{"empty ods", Organisation{Name: "Leeds SAIS"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.org.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
