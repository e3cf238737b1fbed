package urlcanon

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    URL
		wantErr bool
	}{
		{
			name:  "simple domain defaults to port 80",
			input: "http://example.com/path",
			want:  URL{Scheme: "http", Host: "example.com", Port: "80", Path: "/path"},
		},
		{
			name:  "https defaults to port 443",
			input: "https://example.com/path",
			want:  URL{Scheme: "https", Host: "example.com", Port: "443", Path: "/path"},
		},
		{
			name:  "explicit port overrides default",
			input: "http://example.com:8080/path",
			want:  URL{Scheme: "http", Host: "example.com", Port: "8080", Path: "/path"},
		},
		{
			name:  "host is lowercased",
			input: "HTTP://EXAMPLE.com/Path",
			want:  URL{Scheme: "http", Host: "example.com", Port: "80", Path: "/Path"},
		},
		{
			name:  "missing path defaults to root",
			input: "http://example.com",
			want:  URL{Scheme: "http", Host: "example.com", Port: "80", Path: "/"},
		},
		{
			name:  "query preserved",
			input: "http://example.com/path?key=value",
			want:  URL{Scheme: "http", Host: "example.com", Port: "80", Path: "/path", Query: "key=value"},
		},
		{
			name:  "fragment discarded",
			input: "http://example.com/path#section1",
			want:  URL{Scheme: "http", Host: "example.com", Port: "80", Path: "/path"},
		},
		{
			name:    "unsupported scheme rejected",
			input:   "ftp://example.com/path",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestEqual_IgnoresFragment(t *testing.T) {
	a, err := Parse("http://Example.com/path#one")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("http://example.com:80/path#two")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Errorf("expected %s and %s to be equal", a, b)
	}
}

func TestEqual_DistinctPortsDiffer(t *testing.T) {
	a, err := Parse("http://example.com/path")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("http://example.com:8080/path")
	if err != nil {
		t.Fatal(err)
	}
	if a.Equal(b) {
		t.Errorf("expected %s and %s to differ", a, b)
	}
}

func TestResolveReference(t *testing.T) {
	base, err := Parse("https://example.com/dir/page.html")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		href string
		want string
	}{
		{"relative sibling", "sibling.html", "https://example.com:443/dir/sibling.html"},
		{"parent relative", "../up.html", "https://example.com:443/up.html"},
		{"root relative", "/root.html", "https://example.com:443/root.html"},
		{"scheme relative", "//other.com/x.html", "https://other.com:443/x.html"},
		{"absolute", "http://other.com/y.html", "http://other.com:80/y.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveReference(base, tt.href)
			if err != nil {
				t.Fatalf("ResolveReference(%q) unexpected error: %v", tt.href, err)
			}
			if got.String() != tt.want {
				t.Errorf("ResolveReference(%q) = %s, want %s", tt.href, got, tt.want)
			}
		})
	}
}
