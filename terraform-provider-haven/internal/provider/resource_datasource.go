package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// NewResourceDataSource creates a resource data source
func NewResourceDataSource() datasource.DataSource {
	return &resourceDataSource{}
}

type resourceDataSource struct{}

func (d *resourceDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = "haven_resource"
}

func (d *resourceDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Reads a registered resource from a Haven vault.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				Computed:    true,
				Description: "Unique identifier (resource name).",
			},
			"vault": schema.StringAttribute{
				Required:    true,
				Description: "Path to the Haven vault.",
			},
			"name": schema.StringAttribute{
				Required:    true,
				Description: "Name of the resource.",
			},
			"kind": schema.StringAttribute{
				Computed:    true,
				Description: "Resource kind (file, database, bundle).",
			},
			"mode": schema.StringAttribute{
				Computed:    true,
				Description: "Required access mode (ro, rw, create).",
			},
			"candidate_templates": schema.ListAttribute{
				Computed:    true,
				ElementType: types.StringType,
				Description: "Candidate path templates, highest preference first.",
			},
			"active_path": schema.StringAttribute{
				Computed:    true,
				Description: "Path the resource last served from, empty when never acquired.",
			},
			"acquire_count": schema.Int64Attribute{
				Computed:    true,
				Description: "Number of successful acquisitions recorded.",
			},
		},
	}
}

func (d *resourceDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var config resourceDataSourceModel

	diags := req.Config.Get(ctx, &config)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	entryPath := registryEntryPath(config.Vault.ValueString(), config.Name.ValueString())
	data, err := os.ReadFile(entryPath)
	if err != nil {
		resp.Diagnostics.AddError(
			"Failed to read registry entry",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	var entry struct {
		Descriptor   registryDescriptor `json:"descriptor"`
		ActivePath   string             `json:"active_path"`
		AcquireCount int                `json:"acquire_count"`
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		resp.Diagnostics.AddError(
			"Malformed registry entry",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	templates, diags := types.ListValueFrom(ctx, types.StringType, entry.Descriptor.CandidateTemplates)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	config.ID = config.Name
	config.Kind = types.StringValue(entry.Descriptor.Kind)
	config.Mode = types.StringValue(entry.Descriptor.Mode)
	config.CandidateTemplates = templates
	config.ActivePath = types.StringValue(entry.ActivePath)
	config.AcquireCount = types.Int64Value(int64(entry.AcquireCount))

	diags = resp.State.Set(ctx, config)
	resp.Diagnostics.Append(diags...)
}

// resourceDataSourceModel models the resource data source data
type resourceDataSourceModel struct {
	ID                 types.String `tfsdk:"id"`
	Vault              types.String `tfsdk:"vault"`
	Name               types.String `tfsdk:"name"`
	Kind               types.String `tfsdk:"kind"`
	Mode               types.String `tfsdk:"mode"`
	CandidateTemplates types.List   `tfsdk:"candidate_templates"`
	ActivePath         types.String `tfsdk:"active_path"`
	AcquireCount       types.Int64  `tfsdk:"acquire_count"`
}
