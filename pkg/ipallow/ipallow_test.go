package ipallow

import "testing"

func TestYooKassaRanges(t *testing.T) {
	l := MustNew(YooKassaRanges)
	cases := []struct {
		ip   string
		want bool
	}{
		{"185.71.76.1", true},
		{"185.71.76.31", true},
		{"185.71.76.32", false},
		{"185.71.77.10", true},
		{"77.75.153.127", true},
		{"77.75.153.128", false},
		{"77.75.156.11", true},
		{"77.75.156.12", false},
		{"77.75.156.35", true},
		{"77.75.154.200", true},
		{"77.75.154.127", false},
		{"2a02:5180::1", true},
		{"2a02:5180:ffff::1", true},
		{"2a02:5181::1", false},
		{"::ffff:185.71.76.5", true},
		{"10.0.0.1", false},
		{"127.0.0.1", false},
		{"", false},
		{"not-an-ip", false},
	}
	for _, tc := range cases {
		if got := l.Allowed(tc.ip); got != tc.want {
			t.Errorf("Allowed(%q) = %v, want %v", tc.ip, got, tc.want)
		}
	}
}

func TestNewRejectsGarbage(t *testing.T) {
	if _, err := New([]string{"300.1.1.1"}); err == nil {
		t.Fatal("expected error for bad address")
	}
	if _, err := New([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("expected error for bad prefix")
	}
}

func TestNilListDeniesEverything(t *testing.T) {
	var l *List
	if l.Allowed("185.71.76.1") {
		t.Fatal("nil list must deny")
	}
}
