package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Wikid82/jailkeeper/internal/models"
)

func benchmarkLog(b *testing.B, lines int) string {
	b.Helper()
	var sb strings.Builder
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < lines; i++ {
		ts := start.Add(time.Duration(i) * time.Second).Format("2006-01-02 15:04:05")
		fmt.Fprintf(&sb, "%s,000 fail2ban.actions [812]: NOTICE  [sshd] Ban 10.%d.%d.%d\n", ts, i/65536%256, i/256%256, i%256)
	}
	path := filepath.Join(b.TempDir(), "fail2ban.log")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		b.Fatal(err)
	}
	return path
}

func BenchmarkHistoryImport(b *testing.B) {
	path := benchmarkLog(b, 5000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		svc := NewHistoryService(setupHistoryDB(b))
		b.StartTimer()
		if _, err := svc.Import(path); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTopOffenders(b *testing.B) {
	svc := NewHistoryService(setupHistoryDB(b))
	if _, err := svc.Import(benchmarkLog(b, 5000)); err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 500; i++ {
		if err := svc.Append(&models.BanEvent{IP: "10.0.0.1", Jail: "nginx-404", Action: models.ActionBan}); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.TopOffenders(2, 20); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuildIgnoreSet(b *testing.B) {
	values := make([]string, 0, 2000)
	for i := 0; i < 1000; i++ {
		values = append(values, fmt.Sprintf("192.0.2.%d", i%256), fmt.Sprintf("10.%d.0.0/16", i%256))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildIgnoreSet(values)
	}
}
