package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// NewVaultDataSource creates a vault data source
func NewVaultDataSource() datasource.DataSource {
	return &vaultDataSource{}
}

type vaultDataSource struct{}

func (d *vaultDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = "haven_vault"
}

func (d *vaultDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Reads an existing Haven vault.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				Computed:    true,
				Description: "Unique identifier for the vault (vault_id).",
			},
			"path": schema.StringAttribute{
				Required:    true,
				Description: "Path to the Haven vault.",
			},
			"format_version": schema.Int64Attribute{
				Computed:    true,
				Description: "On-disk format version of the vault.",
			},
			"resource_count": schema.Int64Attribute{
				Computed:    true,
				Description: "Number of registered resources.",
			},
		},
	}
}

func (d *vaultDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var config vaultDataSourceModel

	diags := req.Config.Get(ctx, &config)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	vaultPath := config.Path.ValueString()

	idBytes, err := os.ReadFile(filepath.Join(vaultPath, "vault_id"))
	if err != nil {
		resp.Diagnostics.AddError(
			"Failed to read vault",
			fmt.Sprintf("No vault at %s: %s", vaultPath, err),
		)
		return
	}

	versionBytes, err := os.ReadFile(filepath.Join(vaultPath, "format_version"))
	if err != nil {
		resp.Diagnostics.AddError(
			"Failed to read format_version",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}
	version, err := strconv.Atoi(strings.TrimSpace(string(versionBytes)))
	if err != nil {
		resp.Diagnostics.AddError(
			"Malformed format_version",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	resourceCount := 0
	if entries, err := os.ReadDir(filepath.Join(vaultPath, "registry")); err == nil {
		for _, entry := range entries {
			if filepath.Ext(entry.Name()) == ".json" {
				resourceCount++
			}
		}
	}

	config.ID = types.StringValue(strings.TrimSpace(string(idBytes)))
	config.FormatVersion = types.Int64Value(int64(version))
	config.ResourceCount = types.Int64Value(int64(resourceCount))

	diags = resp.State.Set(ctx, config)
	resp.Diagnostics.Append(diags...)
}

// vaultDataSourceModel models the vault data source data
type vaultDataSourceModel struct {
	ID            types.String `tfsdk:"id"`
	Path          types.String `tfsdk:"path"`
	FormatVersion types.Int64  `tfsdk:"format_version"`
	ResourceCount types.Int64  `tfsdk:"resource_count"`
}
