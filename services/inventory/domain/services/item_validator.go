// Package services contains stateless domain services for the inventory bounded context.
// Domain services enforce business rules that operate purely on domain types
// and have zero external dependencies beyond the domain layer.
package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ghuser/farmstand/services/inventory/domain"
	"github.com/ghuser/farmstand/services/inventory/domain/models"
)

// ValidateName enforces business rules for ItemName beyond the structural
// constraints enforced by the ItemName constructor (length 1–255).
//
// Business rules:
//   - No leading or trailing whitespace
//   - No control characters (Unicode category Cc)
//   - No consecutive spaces
func ValidateName(name models.ItemName) error {
	s := name.String()

	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("item name must not be only whitespace")
	}

	if s != strings.TrimSpace(s) {
		return fmt.Errorf("item name must not have leading or trailing whitespace")
	}

	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("item name must not contain control characters")
		}
	}

	if strings.Contains(s, "  ") {
		return fmt.Errorf("item name must not contain consecutive spaces")
	}

	return nil
}

// ValidateItemForCreation checks a fully constructed Item before its first
// write. Range checks on price, size and stock already happened in NewItem.
func ValidateItemForCreation(item *models.Item) error {
	if item == nil {
		return fmt.Errorf("%w: item cannot be nil", domain.ErrInvalidItem)
	}

	if err := ValidateName(item.Name); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidItemName, err)
	}

	if item.ID == "" {
		return fmt.Errorf("%w: id must be set", domain.ErrInvalidItem)
	}

	if item.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at must be set", domain.ErrInvalidItem)
	}

	return nil
}
