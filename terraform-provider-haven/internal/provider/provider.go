// Package provider implements the Terraform provider for Haven vaults. It
// manages vault state directories and resource registrations directly on
// disk so that fleet provisioning can pre-seed nodes before the host
// application first runs.
package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// New creates a new Haven provider
func New() provider.Provider {
	return &havenProvider{}
}

type havenProvider struct{}

func (p *havenProvider) Metadata(_ context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "haven"
	resp.Version = "1.0.0"
}

func (p *havenProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		Attributes: map[string]schema.Attribute{
			"vault_dir": schema.StringAttribute{
				Description: "Default directory holding Haven vaults. Can be overridden per resource.",
				Optional:    true,
			},
		},
	}
}

func (p *havenProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var config providerConfig

	diags := req.Config.Get(ctx, &config)
	resp.Diagnostics.Append(diags...)

	if resp.Diagnostics.HasError() {
		return
	}

	providerData := &providerData{
		VaultDir: config.VaultDir.ValueString(),
	}

	if providerData.VaultDir == "" {
		providerData.VaultDir = "."
	}

	resp.DataSourceData = providerData
	resp.ResourceData = providerData
}

func (p *havenProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewVaultResource,
		NewResourceRegistration,
	}
}

func (p *havenProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewVaultDataSource,
		NewResourceDataSource,
		NewBackupsDataSource,
	}
}

// providerConfig holds the provider configuration
type providerConfig struct {
	VaultDir types.String `tfsdk:"vault_dir"`
}

// providerData holds data shared between resources and data sources
type providerData struct {
	VaultDir string
}

// GetVaultPath returns the full path to a named vault
func (d *providerData) GetVaultPath(name string) string {
	if d.VaultDir == "." || d.VaultDir == "" {
		return fmt.Sprintf("./%s", name)
	}
	return fmt.Sprintf("%s/%s", d.VaultDir, name)
}
