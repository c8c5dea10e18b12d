package connectivity

import (
	"context"
	"errors"
	"os/exec"
	"testing"
)

func TestDeriveHost(t *testing.T) {
	t.Setenv("OS_AUTH_URL", "https://keystone.example.org:5000/v3")
	tests := []struct {
		locator string
		want    string
		ok      bool
	}{
		{"b2:my-bucket:/restic", "api.backblazeb2.com", true},
		{"gs:bucket:/", "storage.googleapis.com", true},
		{"azure:container:/path", "blob.core.windows.net", true},
		{"s3:s3.amazonaws.com/bucket", "s3.amazonaws.com", true},
		{"s3:https://minio.local:9000/bucket", "minio.local", true},
		{"sftp:backup@nas.lan:/srv/restic", "nas.lan", true},
		{"sftp://backup@nas.lan:2222//srv/restic", "nas.lan", true},
		{"rest:https://user:pw@rest.example.com:8000/repo", "rest.example.com", true},
		{"rest:http://[fd00::1]:8000/", "fd00::1", true},
		{"swift:container:/backups", "keystone.example.org", true},
		{"rclone:remote:backups", "", false},
		{"/srv/does-not-exist", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := DeriveHost(tt.locator)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DeriveHost(%q) = %q, %v want %q, %v", tt.locator, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsLocalPath(t *testing.T) {
	dir := t.TempDir()
	if !IsLocalPath(dir) || !IsLocalPath("local:"+dir) {
		t.Fatalf("expected %s to be local", dir)
	}
	if IsLocalPath("b2:bucket:/") {
		t.Fatal("remote locator reported as local")
	}
}

func TestParseMetered(t *testing.T) {
	tests := []struct {
		output  string
		metered bool
		unknown bool
	}{
		{"GENERAL.METERED:yes\n", true, false},
		{"GENERAL.METERED:yes (guessed)\n", true, false},
		{"GENERAL.METERED:no (guessed)\n", false, false},
		{"GENERAL.METERED:unknown\n", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		metered, err := parseMetered(tt.output)
		if metered != tt.metered || errors.Is(err, ErrMeteredUnknown) != tt.unknown {
			t.Errorf("parseMetered(%q) = %v, %v", tt.output, metered, err)
		}
	}
}

func TestNetworkManagerMeteredMissingBinary(t *testing.T) {
	detector := NetworkManagerMetered{Run: func(context.Context, string, ...string) ([]byte, error) {
		return nil, exec.ErrNotFound
	}}
	if _, err := detector.Metered(context.Background(), "eth0"); !errors.Is(err, ErrMeteredUnknown) {
		t.Fatalf("expected ErrMeteredUnknown, got %v", err)
	}

	var gotArgs []string
	detector.Run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte("GENERAL.METERED:yes\n"), nil
	}
	metered, err := detector.Metered(context.Background(), "wwan0")
	if err != nil || !metered {
		t.Fatalf("metered=%v err=%v", metered, err)
	}
	if len(gotArgs) != 7 || gotArgs[6] != "wwan0" {
		t.Fatalf("unexpected nmcli args: %q", gotArgs)
	}
}
