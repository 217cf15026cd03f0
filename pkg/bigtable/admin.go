package bigtable

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigtable"
)

type admin struct {
	ac *bigtable.AdminClient
}

func (a *admin) Tables(ctx context.Context) ([]string, error) {
	tables, err := a.ac.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (a *admin) Families(ctx context.Context, table string) ([]string, error) {
	info, err := a.ac.TableInfo(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get table info for %q: %w", table, err)
	}
	families := make([]string, 0, len(info.FamilyInfos))
	for _, fi := range info.FamilyInfos {
		families = append(families, fi.Name)
	}
	return families, nil
}

func (a *admin) CreateTable(ctx context.Context, table string) error {
	if err := a.ac.CreateTable(ctx, table); err != nil {
		return fmt.Errorf("failed to create table %q: %w", table, err)
	}
	return nil
}

// CreateFamily adds a column family that keeps only the newest cell version.
func (a *admin) CreateFamily(ctx context.Context, table, family string) error {
	if err := a.ac.CreateColumnFamily(ctx, table, family); err != nil {
		return fmt.Errorf("failed to create column family %q on %q: %w", family, table, err)
	}
	if err := a.ac.SetGCPolicy(ctx, table, family, bigtable.MaxVersionsPolicy(1)); err != nil {
		return fmt.Errorf("failed to set gc policy on %s.%s: %w", table, family, err)
	}
	return nil
}
