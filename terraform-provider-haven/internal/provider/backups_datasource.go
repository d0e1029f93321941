package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// NewBackupsDataSource creates a backups data source
func NewBackupsDataSource() datasource.DataSource {
	return &backupsDataSource{}
}

type backupsDataSource struct{}

func (d *backupsDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = "haven_backups"
}

func (d *backupsDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Lists the backups held for a resource in a Haven vault.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				Computed:    true,
				Description: "Identifier (vault path + resource).",
			},
			"vault": schema.StringAttribute{
				Required:    true,
				Description: "Path to the Haven vault.",
			},
			"resource": schema.StringAttribute{
				Required:    true,
				Description: "Name of the resource.",
			},
			"backups": schema.ListNestedAttribute{
				Computed:    true,
				Description: "List of backup records, oldest first.",
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"id": schema.StringAttribute{
							Computed:    true,
							Description: "Backup ID.",
						},
						"created_at": schema.StringAttribute{
							Computed:    true,
							Description: "Creation timestamp.",
						},
						"size_bytes": schema.Int64Attribute{
							Computed:    true,
							Description: "Payload size in bytes.",
						},
						"released": schema.BoolAttribute{
							Computed:    true,
							Description: "Whether the backup has been released for retention pruning.",
						},
					},
				},
			},
		},
	}
}

// backupRecordAttrTypes is the object shape of one backup list element.
var backupRecordAttrTypes = map[string]attr.Type{
	"id":         types.StringType,
	"created_at": types.StringType,
	"size_bytes": types.Int64Type,
	"released":   types.BoolType,
}

func (d *backupsDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var config backupsDataSourceModel

	diags := req.Config.Get(ctx, &config)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	vaultPath := config.Vault.ValueString()
	resource := config.Resource.ValueString()
	recordsDir := filepath.Join(vaultPath, "records", resource)

	entries, err := os.ReadDir(recordsDir)
	if err != nil && !os.IsNotExist(err) {
		resp.Diagnostics.AddError(
			"Failed to list backup records",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	var elements []attr.Value
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(recordsDir, entry.Name()))
		if err != nil {
			continue
		}
		var rec struct {
			ID        string `json:"backup_id"`
			CreatedAt string `json:"created_at"`
			SizeBytes int64  `json:"size_bytes"`
			Released  bool   `json:"released"`
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		obj, objDiags := types.ObjectValue(backupRecordAttrTypes, map[string]attr.Value{
			"id":         types.StringValue(rec.ID),
			"created_at": types.StringValue(rec.CreatedAt),
			"size_bytes": types.Int64Value(rec.SizeBytes),
			"released":   types.BoolValue(rec.Released),
		})
		resp.Diagnostics.Append(objDiags...)
		if resp.Diagnostics.HasError() {
			return
		}
		elements = append(elements, obj)
	}

	list, listDiags := types.ListValue(types.ObjectType{AttrTypes: backupRecordAttrTypes}, elements)
	resp.Diagnostics.Append(listDiags...)
	if resp.Diagnostics.HasError() {
		return
	}

	config.ID = types.StringValue(fmt.Sprintf("%s/%s", vaultPath, resource))
	config.Backups = list

	diags = resp.State.Set(ctx, config)
	resp.Diagnostics.Append(diags...)
}

// backupsDataSourceModel models the backups data source data
type backupsDataSourceModel struct {
	ID       types.String `tfsdk:"id"`
	Vault    types.String `tfsdk:"vault"`
	Resource types.String `tfsdk:"resource"`
	Backups  types.List   `tfsdk:"backups"`
}
