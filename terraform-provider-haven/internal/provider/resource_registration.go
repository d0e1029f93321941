package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// registryEntry is the JSON shape the haven binary reads from
// registry/<name>.json. Only the declarative half is written here; serving
// state is filled in by the first acquisition.
type registryEntry struct {
	Descriptor   registryDescriptor `json:"descriptor"`
	RegisteredAt time.Time          `json:"registered_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	AcquireCount int                `json:"acquire_count"`
}

type registryDescriptor struct {
	Name               string   `json:"name"`
	Kind               string   `json:"kind"`
	CandidateTemplates []string `json:"candidate_templates"`
	Mode               string   `json:"mode"`
	BundleManifest     []string `json:"bundle_manifest,omitempty"`
}

// NewResourceRegistration creates a new resource registration resource
func NewResourceRegistration() resource.Resource {
	return &resourceRegistration{}
}

type resourceRegistration struct {
	data *providerData
}

func (r *resourceRegistration) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = "haven_resource"
}

func (r *resourceRegistration) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}
	r.data = req.ProviderData.(*providerData)
}

func (r *resourceRegistration) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "A resource registration in a Haven vault: the declared descriptor the access layer resolves and recovers against.",

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
				Optional:    true,
				Computed:    true,
				Description: "Resource kind (file, database, bundle).",
			},
			"mode": schema.StringAttribute{
				Optional:    true,
				Computed:    true,
				Description: "Required access mode (ro, rw, create).",
			},
			"candidate_templates": schema.ListAttribute{
				Required:    true,
				ElementType: types.StringType,
				Description: "Candidate path templates, highest preference first.",
			},
			"bundle_manifest": schema.ListAttribute{
				Optional:    true,
				ElementType: types.StringType,
				Description: "Required member files for bundle resources.",
			},
		},
	}
}

func (r *resourceRegistration) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan resourceRegistrationModel

	diags := req.Plan.Get(ctx, &plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	if plan.Kind.IsUnknown() || plan.Kind.IsNull() {
		plan.Kind = types.StringValue("file")
	}
	if plan.Mode.IsUnknown() || plan.Mode.IsNull() {
		plan.Mode = types.StringValue("rw")
	}

	if err := validateDescriptor(plan.Kind.ValueString(), plan.Mode.ValueString()); err != nil {
		resp.Diagnostics.AddError("Invalid descriptor", err.Error())
		return
	}

	if err := r.writeEntry(ctx, &plan, time.Now().UTC()); err != nil {
		resp.Diagnostics.AddError(
			"Failed to write registry entry",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	plan.ID = plan.Name

	diags = resp.State.Set(ctx, plan)
	resp.Diagnostics.Append(diags...)
}

func (r *resourceRegistration) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state resourceRegistrationModel

	diags := req.State.Get(ctx, &state)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	entryPath := registryEntryPath(state.Vault.ValueString(), state.Name.ValueString())
	if _, err := os.Stat(entryPath); os.IsNotExist(err) {
		resp.State.RemoveResource(ctx)
		return
	}

	diags = resp.State.Set(ctx, state)
	resp.Diagnostics.Append(diags...)
}

func (r *resourceRegistration) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan resourceRegistrationModel

	diags := req.Plan.Get(ctx, &plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	if err := validateDescriptor(plan.Kind.ValueString(), plan.Mode.ValueString()); err != nil {
		resp.Diagnostics.AddError("Invalid descriptor", err.Error())
		return
	}

	if err := r.writeEntry(ctx, &plan, time.Now().UTC()); err != nil {
		resp.Diagnostics.AddError(
			"Failed to update registry entry",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	diags = resp.State.Set(ctx, plan)
	resp.Diagnostics.Append(diags...)
}

func (r *resourceRegistration) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state resourceRegistrationModel

	diags := req.State.Get(ctx, &state)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	entryPath := registryEntryPath(state.Vault.ValueString(), state.Name.ValueString())
	if err := os.Remove(entryPath); err != nil && !os.IsNotExist(err) {
		resp.Diagnostics.AddError(
			"Failed to delete registry entry",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}
}

// writeEntry serializes the descriptor into registry/<name>.json.
func (r *resourceRegistration) writeEntry(ctx context.Context, plan *resourceRegistrationModel, now time.Time) error {
	var templates []string
	if diags := plan.CandidateTemplates.ElementsAs(ctx, &templates, false); diags.HasError() {
		return fmt.Errorf("read candidate_templates: %v", diags)
	}
	var manifest []string
	if !plan.BundleManifest.IsNull() && !plan.BundleManifest.IsUnknown() {
		if diags := plan.BundleManifest.ElementsAs(ctx, &manifest, false); diags.HasError() {
			return fmt.Errorf("read bundle_manifest: %v", diags)
		}
	}

	entry := registryEntry{
		Descriptor: registryDescriptor{
			Name:               plan.Name.ValueString(),
			Kind:               plan.Kind.ValueString(),
			CandidateTemplates: templates,
			Mode:               plan.Mode.ValueString(),
			BundleManifest:     manifest,
		},
		RegisteredAt: now,
		UpdatedAt:    now,
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	entryPath := registryEntryPath(plan.Vault.ValueString(), plan.Name.ValueString())
	if err := os.MkdirAll(filepath.Dir(entryPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(entryPath, data, 0644)
}

func registryEntryPath(vaultPath, name string) string {
	return filepath.Join(vaultPath, "registry", name+".json")
}

// validateDescriptor checks kind and mode against the values the haven
// binary accepts.
func validateDescriptor(kind, mode string) error {
	switch kind {
	case "file", "database", "bundle":
	default:
		return fmt.Errorf("invalid kind %q (want file, database or bundle)", kind)
	}
	switch mode {
	case "ro", "rw", "create":
	default:
		return fmt.Errorf("invalid mode %q (want ro, rw or create)", mode)
	}
	return nil
}

// resourceRegistrationModel models the resource registration data
type resourceRegistrationModel struct {
	ID                 types.String `tfsdk:"id"`
	Vault              types.String `tfsdk:"vault"`
	Name               types.String `tfsdk:"name"`
	Kind               types.String `tfsdk:"kind"`
	Mode               types.String `tfsdk:"mode"`
	CandidateTemplates types.List   `tfsdk:"candidate_templates"`
	BundleManifest     types.List   `tfsdk:"bundle_manifest"`
}
