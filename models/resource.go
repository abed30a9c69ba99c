package models

import (
	"errors"
	"sort"
	"strings"
)

var ErrUnknownResource = errors.New("unknown resource")

const (
	ResourceSales          = "sales"
	ResourcePurchases      = "purchases"
	ResourceReservations   = "reservations"
	ResourceProducts       = "products"
	ResourceInventory      = "inventory"
	ResourceMoneyMovements = "money_movements"
	ResourceStockMovements = "stock_movements"
	ResourceCustomers      = "customers"
	ResourceAuditLog       = "audit_log"
	ResourceMilestones     = "milestones"
	ResourceDailyTotals    = "daily_totals"
)

const (
	ProcedureCorrectProduct = "correct_product"
	ProcedureRollbackAudit  = "rollback_audit_entry"
)

// Resource describes one named view the dashboard can address.
type Resource struct {
	Name string
	View string

	// DetailTable/DetailForeignKey address the itemized rows of one record.
	DetailTable      string
	DetailForeignKey string

	DateColumn string

	// CorrectionProcedure is set for transaction resources whose detail lines can be corrected.
	CorrectionProcedure string

	// Tables are the base tables whose audit entries concern this resource.
	Tables []string
}

func (r Resource) HasDetails() bool {
	return r.DetailTable != "" && r.DetailForeignKey != ""
}

func (r Resource) IsTransaction() bool {
	return r.CorrectionProcedure != ""
}

var resources = map[string]Resource{
	ResourceSales: {
		Name: ResourceSales, View: "sales_view",
		DetailTable: "sale_items", DetailForeignKey: "sale_id",
		DateColumn:          "sold_at",
		CorrectionProcedure: "correct_sale_items",
		Tables:              []string{"sales", "sale_items"},
	},
	ResourcePurchases: {
		Name: ResourcePurchases, View: "purchases_view",
		DetailTable: "purchase_items", DetailForeignKey: "purchase_id",
		DateColumn:          "purchased_at",
		CorrectionProcedure: "correct_purchase_items",
		Tables:              []string{"purchases", "purchase_items"},
	},
	ResourceReservations: {
		Name: ResourceReservations, View: "reservations_view",
		DetailTable: "reservation_items", DetailForeignKey: "reservation_id",
		DateColumn:          "reserved_at",
		CorrectionProcedure: "correct_reservation_items",
		Tables:              []string{"reservations", "reservation_items"},
	},
	ResourceProducts: {
		Name: ResourceProducts, View: "products_view",
		Tables: []string{"products"},
	},
	ResourceInventory: {
		Name: ResourceInventory, View: "inventory_view",
		Tables: []string{"inventory"},
	},
	ResourceMoneyMovements: {
		Name: ResourceMoneyMovements, View: "money_movements_view",
		DetailTable: "money_movements_view", DetailForeignKey: "transaction_id",
		DateColumn: "moved_at",
		Tables:     []string{"money_movements"},
	},
	ResourceStockMovements: {
		Name: ResourceStockMovements, View: "stock_movements_view",
		DetailTable: "stock_movements_view", DetailForeignKey: "transaction_id",
		DateColumn: "moved_at",
		Tables:     []string{"stock_movements"},
	},
	ResourceCustomers: {
		Name: ResourceCustomers, View: "customers_view",
		Tables: []string{"customers"},
	},
	ResourceAuditLog: {
		Name: ResourceAuditLog, View: "audit_log_view",
		DetailTable: "audit_log_view", DetailForeignKey: "id",
		DateColumn: "created_at",
	},
	ResourceMilestones: {
		Name: ResourceMilestones, View: "sales_milestones_view",
		DateColumn: "day",
	},
	ResourceDailyTotals: {
		Name: ResourceDailyTotals, View: "daily_sales_totals_view",
		DateColumn: "day",
	},
}

func LookupResource(name string) (Resource, error) {
	r, ok := resources[strings.TrimSpace(name)]
	if !ok {
		return Resource{}, ErrUnknownResource
	}
	return r, nil
}

// MustResource is for the fixed names declared in this package.
func MustResource(name string) Resource {
	r, err := LookupResource(name)
	if err != nil {
		panic("models: unknown resource " + name)
	}
	return r
}

// ResourceNames lists every addressable resource in a stable order.
func ResourceNames() []string {
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResourceForTable maps an audited base table back to the resource that displays it.
func ResourceForTable(table string) (Resource, bool) {
	table = strings.ToLower(strings.TrimSpace(table))
	for _, r := range resources {
		for _, t := range r.Tables {
			if t == table {
				return r, true
			}
		}
	}
	return Resource{}, false
}

// MovementResources hold the money and stock movements derived from a transaction.
var MovementResources = []string{ResourceMoneyMovements, ResourceStockMovements}

// EntityReferencingResources may reference a product by name or id; a merge or rename
// of an entity must invalidate all of them.
var EntityReferencingResources = []string{ResourceSales, ResourcePurchases, ResourceReservations, ResourceProducts}
