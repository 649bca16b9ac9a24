package spanner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	database "cloud.google.com/go/spanner/admin/database/apiv1"
	"cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	"google.golang.org/api/option"

	"github.com/KushagraAgarwal525/racoon/internal/store/migrations"
)

var ddlNameRx = regexp.MustCompile(`(?i)^\s*CREATE\s+(?:UNIQUE\s+)?(?:NULL_FILTERED\s+)?(TABLE|INDEX)\s+` + "`?" + `([A-Za-z_][A-Za-z0-9_]*)`)

// EnsureSchema creates any table or index of the embedded schema that the database lacks.
// The database itself must already exist.
func EnsureSchema(ctx context.Context, cfg Config, opts ...option.ClientOption) error {
	admin, err := database.NewDatabaseAdminClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("database admin client: %w", err)
	}
	defer admin.Close()

	cur, err := admin.GetDatabaseDdl(ctx, &databasepb.GetDatabaseDdlRequest{Database: cfg.DatabasePath()})
	if err != nil {
		return fmt.Errorf("read spanner ddl: %w", err)
	}
	stmts := missingDDL(cur.GetStatements(), migrations.SpannerDDL())
	if len(stmts) == 0 {
		return nil
	}

	op, err := admin.UpdateDatabaseDdl(ctx, &databasepb.UpdateDatabaseDdlRequest{
		Database:   cfg.DatabasePath(),
		Statements: stmts,
	})
	if err != nil {
		return fmt.Errorf("update spanner ddl: %w", err)
	}
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("wait for spanner ddl: %w", err)
	}
	return nil
}

// missingDDL returns the wanted statements whose object is absent from existing, in order.
func missingDDL(existing, wanted []string) []string {
	have := make(map[string]bool, len(existing))
	for _, stmt := range existing {
		if key := ddlKey(stmt); key != "" {
			have[key] = true
		}
	}
	var out []string
	for _, stmt := range wanted {
		key := ddlKey(stmt)
		if key == "" || !have[key] {
			out = append(out, stmt)
		}
	}
	return out
}

// ddlKey identifies a CREATE statement as kind:name, lowercased.
func ddlKey(stmt string) string {
	m := ddlNameRx.FindStringSubmatch(stmt)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1]) + ":" + strings.ToLower(m[2])
}
