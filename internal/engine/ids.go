package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"traceline/internal/domain"
)

// IDPrefix composes {PROJECT_NAME}-{AREA}-{TYPE_CODE}.
func IDPrefix(projectName, area string, k domain.Kind) string {
	name := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(projectName)), " ", "_")
	return fmt.Sprintf("%s-%s-%s", name, area, k.Code)
}

func formatID(prefix string, n int64) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// maxSuffix scans the ids of the table sharing prefix and returns the largest
// numeric suffix. Suffixes that do not parse count as 0.
func (e Engine) maxSuffix(ctx context.Context, tx *sql.Tx, k domain.Kind, prefix string) (int64, error) {
	ids, err := e.Repo.IDsWithPrefix(ctx, tx, k, prefix+"-")
	if err != nil {
		return 0, err
	}
	var max int64
	for _, id := range ids {
		suffix := id[strings.LastIndex(id, "-")+1:]
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil || n < 0 {
			e.logger().Printf("WARNING: ignoring non-numeric suffix in id %s", id)
			continue
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

// nextID mints the next id of the prefix inside tx. The per-prefix counter is
// advanced past the scanned maximum atomically.
func (e Engine) nextID(ctx context.Context, tx *sql.Tx, k domain.Kind, projectName, area string) (string, error) {
	prefix := IDPrefix(projectName, area, k)
	max, err := e.maxSuffix(ctx, tx, k, prefix)
	if err != nil {
		return "", fmt.Errorf("scan ids: %w", err)
	}
	n, err := e.Repo.NextSequence(ctx, tx, prefix, max)
	if err != nil {
		return "", err
	}
	return formatID(prefix, n), nil
}

// PreviewID returns the id the next create would receive without consuming
// it.
func (e Engine) PreviewID(ctx context.Context, artifactType, projectID, area string) (string, error) {
	k, err := kindOf(artifactType)
	if err != nil {
		return "", err
	}
	p, err := e.requireProject(ctx, nil, projectID)
	if err != nil {
		return "", err
	}
	area, err = e.resolveArea(ctx, nil, area)
	if err != nil {
		return "", err
	}
	if area == "" {
		area = e.Config.DefaultArea()
	}
	prefix := IDPrefix(p.Name, area, k)
	max, err := e.maxSuffix(ctx, nil, k, prefix)
	if err != nil {
		return "", classify("scan ids", err)
	}
	last, err := e.Repo.SequenceValue(ctx, nil, prefix)
	if err != nil {
		return "", classify("read sequence", err)
	}
	if last > max {
		max = last
	}
	return formatID(prefix, max+1), nil
}
