package cli

import (
	"fmt"
	"strings"

	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/haven"
)

// suggestResources provides helpful suggestions when a resource is not found.
func suggestResources(c *haven.Client, name string) string {
	entries, err := c.Resources()
	if err != nil || len(entries) == 0 {
		return fmt.Sprintf("Register a resource with %s.", color.Code("haven acquire <name> --path <template> --save"))
	}

	// Try to find close matches by name
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(strings.ToLower(e.Descriptor.Name), strings.ToLower(name)) {
			matches = append(matches, color.Resource(e.Descriptor.Name))
		}
	}

	// If no prefix matches, try substring
	if len(matches) == 0 {
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Descriptor.Name), strings.ToLower(name)) {
				matches = append(matches, color.Resource(e.Descriptor.Name))
			}
		}
	}

	if len(matches) > 0 {
		hint := "Did you mean"
		if len(matches) > 1 {
			hint += " one of"
		}
		return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
	}

	var names []string
	for _, e := range entries {
		names = append(names, color.Resource(e.Descriptor.Name))
	}
	return fmt.Sprintf("Registered resources: %s", strings.Join(names, ", "))
}

// formatResourceNotFoundError formats a resource not found error with suggestions.
func formatResourceNotFoundError(c *haven.Client, name string) string {
	var sb strings.Builder

	sb.WriteString(color.Error(fmt.Sprintf("resource '%s' is not registered", name)))
	sb.WriteString("\n")
	sb.WriteString(color.Dim("  " + suggestResources(c, name)))

	return sb.String()
}

// formatNoVaultError formats an error when the vault cannot be opened.
func formatNoVaultError(err error) string {
	var sb strings.Builder

	sb.WriteString(color.Error(fmt.Sprintf("cannot open vault: %v", err)))
	sb.WriteString("\n")
	sb.WriteString(color.Dim(fmt.Sprintf("  Run %s to create one.", color.Code("haven init"))))

	return sb.String()
}
