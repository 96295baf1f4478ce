package directory

import (
	"context"
	"fmt"

	"go.uber.org/fx"
)

// AssetInfo is the slice of asset master data the engine needs for alert and
// report enrichment. The engine never writes asset state.
type AssetInfo struct {
	AssetID     string
	Name        string
	Location    string
	Criticality int
}

// AssetDirectory resolves asset ids against the external asset registry.
type AssetDirectory interface {
	Lookup(ctx context.Context, tenantID, assetID string) (*AssetInfo, error)
}

// TechnicianDirectory resolves technician ids to display names.
type TechnicianDirectory interface {
	DisplayName(ctx context.Context, tenantID, technicianID string) (string, error)
}

var Module = fx.Module("directory",
	fx.Provide(
		NewStaticAssetDirectory,
		NewStaticTechnicianDirectory,
	),
)

// StaticAssetDirectory is the fallback resolver used when no upstream asset
// service is wired. It fabricates a display name from the id.
type StaticAssetDirectory struct{}

func NewStaticAssetDirectory() AssetDirectory {
	return &StaticAssetDirectory{}
}

func (d *StaticAssetDirectory) Lookup(_ context.Context, _ string, assetID string) (*AssetInfo, error) {
	return &AssetInfo{
		AssetID: assetID,
		Name:    fmt.Sprintf("Asset-%s", assetID),
	}, nil
}

type StaticTechnicianDirectory struct{}

func NewStaticTechnicianDirectory() TechnicianDirectory {
	return &StaticTechnicianDirectory{}
}

func (d *StaticTechnicianDirectory) DisplayName(_ context.Context, _ string, technicianID string) (string, error) {
	return fmt.Sprintf("Technician-%s", technicianID), nil
}
