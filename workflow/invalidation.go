package workflow

import (
	"github.com/mmdatafocus/shopdash_backend/cache"
	"github.com/mmdatafocus/shopdash_backend/models"
)

// TransactionInvalidation lists every cache entry derivable from a corrected transaction:
// its detail lines, its money and stock movements and the lists of its resource.
// A merge or rename also drops every resource that may reference the changed entity.
func TransactionInvalidation(res models.Resource, transactionID string, result *models.CorrectionResult) cache.Invalidation {
	inv := cache.Invalidation{
		Keys:  []cache.Key{cache.DetailKey(res.Name, transactionID)},
		Lists: []string{res.Name},
	}
	for _, movement := range models.MovementResources {
		inv.Keys = append(inv.Keys, cache.DetailKey(movement, transactionID))
		inv.Lists = append(inv.Lists, movement)
	}
	return withCascade(inv, result)
}

// ProductInvalidation drops the product's own caches, cascading only on a merge or rename.
func ProductInvalidation(productID string, result *models.CorrectionResult) cache.Invalidation {
	inv := cache.Invalidation{
		Keys:  []cache.Key{cache.DetailKey(models.ResourceProducts, productID)},
		Lists: []string{models.ResourceProducts, models.ResourceInventory},
	}
	return withCascade(inv, result)
}

// RollbackInvalidation covers the resource that displays the reverted table. An unknown table
// falls back to every entity-referencing resource.
func RollbackInvalidation(tableName string, result *models.CorrectionResult) cache.Invalidation {
	inv := cache.Invalidation{Lists: []string{models.ResourceAuditLog}}
	res, ok := models.ResourceForTable(tableName)
	if !ok {
		inv.Resources = append(inv.Resources, models.EntityReferencingResources...)
		return inv
	}
	inv.Resources = append(inv.Resources, res.Name)
	if res.IsTransaction() {
		inv.Resources = append(inv.Resources, models.MovementResources...)
	}
	if res.Name == models.ResourceProducts {
		inv.Lists = append(inv.Lists, models.ResourceInventory)
	}
	return withCascade(inv, result)
}

func withCascade(inv cache.Invalidation, result *models.CorrectionResult) cache.Invalidation {
	if result != nil && result.IsStructural() {
		inv.Resources = append(inv.Resources, models.EntityReferencingResources...)
	}
	return inv
}
