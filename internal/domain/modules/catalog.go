package modules

// DefaultModules is the Ambrosia module catalogue. Order matters: the first
// matching route wins, so specific patterns come before wildcards.
func DefaultModules() []Module {
	return []Module{
		{
			Key:     "auth",
			Name:    "Authentication",
			Enabled: true,
			Routes: []Route{
				{Path: "/auth", Component: "Login", Title: "Sign in"},
				{Path: "/auth/register", Component: "Register", Title: "Create account"},
			},
		},
		{
			Key:     "onboarding",
			Name:    "Onboarding",
			Enabled: true,
			Routes: []Route{
				{Path: "/onboarding", Component: "Onboarding"},
			},
		},
		{
			Key:     "home",
			Name:    "Home",
			Enabled: true,
			Routes: []Route{
				{Path: "/", Component: "Dashboard"},
			},
		},
		{
			Key:     "store",
			Name:    "Store",
			Enabled: true,
			Routes: []Route{
				{Path: "/store", Component: "Store", Business: BusinessStore},
				{Path: "/store/checkout", Component: "Checkout", Business: BusinessStore, RequiresOpenTurn: true, Title: "Checkout"},
				{Path: "/store/orders", Component: "Orders", Business: BusinessStore, Title: "Orders"},
				{Path: "/store/orders/:id", Component: "OrderDetail", Business: BusinessStore, Title: "Order"},
				{Path: "/store/products", Component: "Products", Business: BusinessStore, Title: "Products"},
				{Path: "/store/products/:id", Component: "ProductEdit", Business: BusinessStore, Title: "Product"},
			},
		},
		{
			Key:     "restaurant",
			Name:    "Restaurant",
			Enabled: true,
			Routes: []Route{
				{Path: "/spaces", Component: "Spaces", Business: BusinessRestaurant, Title: "Spaces"},
				{Path: "/spaces/:spaceId/tables", Component: "Tables", Business: BusinessRestaurant, Title: "Tables"},
				{Path: "/tables/:tableId/order", Component: "TableOrder", Business: BusinessRestaurant, RequiresOpenTurn: true, Title: "Table order"},
				{Path: "/dishes", Component: "Dishes", Business: BusinessRestaurant, Title: "Dishes"},
				{Path: "/orders/:id", Component: "OrderDetail", Business: BusinessRestaurant, Title: "Order"},
			},
		},
		{
			Key:           "wallet",
			Name:          "Wallet",
			Enabled:       true,
			ComponentBase: BaseModules,
			ComponentPath: "cashier",
			Routes: []Route{
				{Path: "/wallet", Component: "Wallet"},
				{Path: "/wallet/transactions", Component: "Transactions", Title: "Transactions"},
			},
		},
		{
			Key:     "reports",
			Name:    "Reports",
			Enabled: true,
			Routes: []Route{
				{Path: "/reports", Component: "Reports"},
			},
		},
		{
			Key:     "users",
			Name:    "Users",
			Enabled: true,
			Routes: []Route{
				{Path: "/users", Component: "Users"},
				{Path: "/users/:id", Component: "UserEdit", Title: "User"},
			},
		},
		{
			Key:     "printers",
			Name:    "Printers",
			Enabled: true,
			Routes: []Route{
				{Path: "/printers", Component: "Printers"},
			},
		},
		{
			Key:     "shifts",
			Name:    "Shifts",
			Enabled: true,
			Routes: []Route{
				{Path: "/shifts/open-turn", Component: "OpenTurn", Title: "Open turn"},
				{Path: "/shifts", Component: "Shifts"},
			},
		},
		{
			Key:     "settings",
			Name:    "Settings",
			Enabled: true,
			Routes: []Route{
				{Path: "/settings", Component: "Settings"},
				{Path: "/settings/*", Component: "Settings"},
			},
		},
		{
			Key:     "kitchen",
			Name:    "Kitchen display",
			Enabled: false,
			Routes: []Route{
				{Path: "/kitchen", Component: "Kitchen", Business: BusinessRestaurant},
			},
		},
	}
}

// DefaultRegistry compiles DefaultModules.
func DefaultRegistry() *Registry {
	return MustNewRegistry(DefaultModules()...)
}
