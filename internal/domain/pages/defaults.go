package pages

import "fmt"

// DefaultCatalog registers the components used by modules.DefaultModules.
// Locations mirror the client bundle layout, which mixes flat files, folders
// with a <Name>Page entry and folders with an index entry.
func DefaultCatalog() (*Catalog, error) {
	c := NewCatalog()

	pages := []struct {
		location string
		name     string
	}{
		{"auth/Login", "Login"},
		{"auth/Register/RegisterPage", "Register"},
		{"onboarding/Onboarding/index", "Onboarding"},
		{"home/Dashboard/DashboardPage", "Dashboard"},
		{"store/Store/StorePage", "Store"},
		{"store/Checkout/CheckoutPage", "Checkout"},
		{"store/Orders/OrdersPage", "Orders"},
		{"store/OrderDetail", "OrderDetail"},
		{"store/Products/ProductsPage", "Products"},
		{"store/ProductEdit/index", "ProductEdit"},
		{"restaurant/Spaces/SpacesPage", "Spaces"},
		{"restaurant/Tables/TablesPage", "Tables"},
		{"restaurant/TableOrder/index", "TableOrder"},
		{"restaurant/Dishes/DishesPage", "Dishes"},
		{"restaurant/OrderDetail", "OrderDetail"},
		{"reports/Reports/ReportsPage", "Reports"},
		{"users/Users/UsersPage", "Users"},
		{"users/UserEdit/index", "UserEdit"},
		{"printers/Printers/PrintersPage", "Printers"},
		{"shifts/OpenTurn/OpenTurnPage", "OpenTurn"},
		{"shifts/Shifts", "Shifts"},
	}
	for _, p := range pages {
		if err := c.RegisterPage(p.location, ClientPageFactory(p.name, nil)); err != nil {
			return nil, err
		}
	}

	if err := c.RegisterModule("cashier", Exports{
		Default: ClientPageFactory("Wallet", nil),
		Named: map[string]Factory{
			"Wallet":       ClientPageFactory("Wallet", nil),
			"Transactions": ClientPageFactory("Transactions", nil),
		},
	}); err != nil {
		return nil, err
	}

	// Settings lives in the modules tree but is routed through pages.
	if err := c.RegisterModule("settings", Exports{
		Default: ClientPageFactory("Settings", map[string]any{"sections": []string{"general", "printers", "payments", "users"}}),
	}); err != nil {
		return nil, err
	}
	if err := c.Alias("settings", "Settings", "settings"); err != nil {
		return nil, err
	}

	return c, nil
}

// MustDefaultCatalog panics when DefaultCatalog fails.
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(fmt.Sprintf("pages: default catalog: %v", err))
	}
	return c
}
