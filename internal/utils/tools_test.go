package utils

import "testing"

func TestEnsureDataURL(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{
			name:     "已是 data URL",
			value:    "data:image/png;base64,AAAA",
			expected: "data:image/png;base64,AAAA",
		},
		{
			name:     "裸 base64 补前缀",
			value:    "AAAA",
			expected: "data:image/jpeg;base64,AAAA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EnsureDataURL(tt.value)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestSplitDataURL(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		expectedMime string
		expectedData string
	}{
		{
			name:         "标准 data URL",
			value:        "data:image/png;base64,AAAA",
			expectedMime: "image/png",
			expectedData: "AAAA",
		},
		{
			name:         "非 data URL 默认 jpeg",
			value:        "AAAA",
			expectedMime: "image/jpeg",
			expectedData: "AAAA",
		},
		{
			name:         "畸形 data URL",
			value:        "data:image/png",
			expectedMime: "image/jpeg",
			expectedData: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mimeType, data := SplitDataURL(tt.value)
			if mimeType != tt.expectedMime {
				t.Errorf("expected mime %q, got %q", tt.expectedMime, mimeType)
			}
			if data != tt.expectedData {
				t.Errorf("expected data %q, got %q", tt.expectedData, data)
			}
		})
	}
}
