package browser

import (
	"context"
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindSystem, false},
		{"system", KindSystem, false},
		{"Chrome", KindChrome, false},
		{"chromedp", KindChrome, false},
		{"none", KindNone, false},
		{"firefox", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	l, err := New(Options{Kind: KindSystem})
	if err != nil {
		t.Fatalf("New(system) error = %v", err)
	}
	if _, ok := l.(SystemLauncher); !ok {
		t.Errorf("New(system) = %T, want SystemLauncher", l)
	}

	l, err = New(Options{Kind: KindChrome, ChromeProfile: "/tmp/profile"})
	if err != nil {
		t.Fatalf("New(chrome) error = %v", err)
	}
	chrome, ok := l.(*ChromeLauncher)
	if !ok {
		t.Fatalf("New(chrome) = %T, want *ChromeLauncher", l)
	}
	if chrome.userDataDir != "/tmp/profile" {
		t.Errorf("userDataDir = %q", chrome.userDataDir)
	}
	// Close before any Open must not start or fail anything.
	if err := chrome.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if _, err := New(Options{Kind: "bogus"}); err == nil {
		t.Error("New(bogus) should fail")
	}
}

func TestSystemLauncher_EmptyURL(t *testing.T) {
	if err := (SystemLauncher{}).Open(context.Background(), ""); err == nil {
		t.Error("Open(\"\") should fail")
	}
}

func TestNopLauncher(t *testing.T) {
	if err := (NopLauncher{}).Open(context.Background(), "https://idp"); err != nil {
		t.Errorf("Open() error = %v", err)
	}
}

func TestRecordingLauncher(t *testing.T) {
	r := &RecordingLauncher{}
	_ = r.Open(context.Background(), "https://one")
	_ = r.Open(context.Background(), "https://two")

	urls := r.URLs()
	if len(urls) != 2 || urls[0] != "https://one" || urls[1] != "https://two" {
		t.Errorf("URLs() = %v", urls)
	}

	r.Err = errors.New("boom")
	if err := r.Open(context.Background(), "https://three"); err == nil {
		t.Error("Open() should return configured error")
	}
}
