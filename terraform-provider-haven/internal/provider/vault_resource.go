package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// vaultLayout mirrors the subdirectories the haven binary creates at init.
var vaultLayout = []string{"backups", "records", "intents", "journal", "locks", "registry"}

// NewVaultResource creates a new vault resource
func NewVaultResource() resource.Resource {
	return &vaultResource{}
}

type vaultResource struct {
	data *providerData
}

func (r *vaultResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = "haven_vault"
}

func (r *vaultResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}
	r.data = req.ProviderData.(*providerData)
}

func (r *vaultResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "A Haven vault: the per-node state directory holding backups, records, locks and the recovery journal.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				Computed:    true,
				Description: "Unique identifier for the vault (vault_id).",
			},
			"name": schema.StringAttribute{
				Required:    true,
				Description: "Name of the vault.",
			},
			"path": schema.StringAttribute{
				Optional:    true,
				Computed:    true,
				Description: "Path where the vault will be created. Defaults to provider vault_dir + name.",
			},
			"format_version": schema.Int64Attribute{
				Computed:    true,
				Description: "On-disk format version of the vault.",
			},
		},
	}
}

func (r *vaultResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan vaultResourceModel

	diags := req.Plan.Get(ctx, &plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	fullPath := plan.Path.ValueString()
	if fullPath == "" {
		fullPath = r.data.GetVaultPath(plan.Name.ValueString())
	}

	if _, err := os.Stat(filepath.Join(fullPath, "format_version")); err == nil {
		resp.Diagnostics.AddError(
			"Vault already initialized",
			fmt.Sprintf("A vault already exists at %s", fullPath),
		)
		return
	}

	for _, sub := range vaultLayout {
		if err := os.MkdirAll(filepath.Join(fullPath, sub), 0755); err != nil {
			resp.Diagnostics.AddError(
				"Failed to create vault directory",
				fmt.Sprintf("Error: %s", err),
			)
			return
		}
	}

	if err := os.WriteFile(filepath.Join(fullPath, "format_version"), []byte("1\n"), 0644); err != nil {
		resp.Diagnostics.AddError(
			"Failed to write format_version",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	vaultID := uuid.NewString()
	if err := os.WriteFile(filepath.Join(fullPath, "vault_id"), []byte(vaultID+"\n"), 0644); err != nil {
		resp.Diagnostics.AddError(
			"Failed to write vault_id",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	plan.Path = types.StringValue(fullPath)
	plan.ID = types.StringValue(vaultID)
	plan.FormatVersion = types.Int64Value(1)

	diags = resp.State.Set(ctx, plan)
	resp.Diagnostics.Append(diags...)
}

func (r *vaultResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state vaultResourceModel

	diags := req.State.Get(ctx, &state)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	fullPath := state.Path.ValueString()
	if _, err := os.Stat(filepath.Join(fullPath, "format_version")); os.IsNotExist(err) {
		resp.State.RemoveResource(ctx)
		return
	}

	diags = resp.State.Set(ctx, state)
	resp.Diagnostics.Append(diags...)
}

func (r *vaultResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan vaultResourceModel

	diags := req.Plan.Get(ctx, &plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	diags = resp.State.Set(ctx, plan)
	resp.Diagnostics.Append(diags...)
}

func (r *vaultResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state vaultResourceModel

	diags := req.State.Get(ctx, &state)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	if err := os.RemoveAll(state.Path.ValueString()); err != nil {
		resp.Diagnostics.AddError(
			"Failed to delete vault",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}
}

func (r *vaultResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	// Import from path
	path := req.ID

	idBytes, err := os.ReadFile(filepath.Join(path, "vault_id"))
	if err != nil {
		resp.Diagnostics.AddError(
			"Failed to read vault",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	var state vaultResourceModel
	state.Path = types.StringValue(path)
	state.ID = types.StringValue(strings.TrimSpace(string(idBytes)))
	state.Name = types.StringValue(filepath.Base(path))
	state.FormatVersion = types.Int64Value(1)

	diags := resp.State.Set(ctx, state)
	resp.Diagnostics.Append(diags...)
}

// vaultResourceModel models the vault resource data
type vaultResourceModel struct {
	Name          types.String `tfsdk:"name"`
	Path          types.String `tfsdk:"path"`
	ID            types.String `tfsdk:"id"`
	FormatVersion types.Int64  `tfsdk:"format_version"`
}
