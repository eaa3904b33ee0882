package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"klinevault/logger"
)

const (
	successReportName = ".lastrun.success.json"
	failedReportName  = ".lastrun.failed.json"
)

// writeRunReport replaces the previous run's report files. A list that is
// empty in this run removes its stale file.
func writeRunReport(dir string, r Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeOrRemove(filepath.Join(dir, successReportName), r.Succeeded, len(r.Succeeded)); err != nil {
		return err
	}
	if err := writeOrRemove(filepath.Join(dir, failedReportName), r.Failed, len(r.Failed)); err != nil {
		return err
	}
	logger.GetLogger().WithComponent("orchestrator").WithFields(logger.Fields{
		"dir":       dir,
		"succeeded": len(r.Succeeded),
		"failed":    len(r.Failed),
	}).Debug("run report saved")
	return nil
}

func writeOrRemove(path string, v any, n int) error {
	if n == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FailedSummary joins the first few failures into one line.
func FailedSummary(failed []FailedEntry) string {
	var b strings.Builder
	for i, f := range failed {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Symbol)
		b.WriteString(": ")
		b.WriteString(f.Reason)
		if i >= 4 && len(failed) > 6 {
			b.WriteString(fmt.Sprintf(" (+%d more)", len(failed)-5))
			break
		}
	}
	return b.String()
}
