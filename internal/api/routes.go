package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Users, KYC, balances and holdings
	api.HandleFunc("/users", handler.CreateUser).Methods("POST")
	api.HandleFunc("/users/{id}", handler.GetUser).Methods("GET")
	api.HandleFunc("/users/{id}/kyc", handler.SetKYCStatus).Methods("PUT")
	api.HandleFunc("/users/{id}/balance", handler.GetBalance).Methods("GET")
	api.HandleFunc("/users/{id}/balance/rebuild", handler.RebuildBalance).Methods("POST")
	api.HandleFunc("/users/{id}/portfolio", handler.GetPortfolio).Methods("GET")
	api.HandleFunc("/users/{id}/portfolio/revalue", handler.RevaluePortfolio).Methods("POST")
	api.HandleFunc("/users/{id}/orders", handler.ListUserOrders).Methods("GET")
	api.HandleFunc("/users/{id}/transactions", handler.ListUserTransactions).Methods("GET")
	api.HandleFunc("/users/{id}/deposits", handler.Deposit).Methods("POST")
	api.HandleFunc("/users/{id}/withdrawals", handler.Withdraw).Methods("POST")
	api.HandleFunc("/users/{id}/dividends", handler.RecordDividend).Methods("POST")
	api.HandleFunc("/users/{id}/fees", handler.ChargeFee).Methods("POST")

	// Orders
	api.HandleFunc("/orders", handler.PlaceOrder).Methods("POST")
	api.HandleFunc("/orders/by-number/{number}", handler.GetOrderByNumber).Methods("GET")
	api.HandleFunc("/orders/{id}", handler.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/approve", handler.ApproveOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/reject", handler.RejectOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/execute", handler.ExecuteOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", handler.CancelOrder).Methods("POST")

	// Ledger
	api.HandleFunc("/transactions/{id}", handler.GetTransaction).Methods("GET")
	api.HandleFunc("/transactions/{id}/finalize", handler.FinalizeTransaction).Methods("POST")
	api.HandleFunc("/transactions/{id}/adjust", handler.AdjustTransaction).Methods("POST")
	api.HandleFunc("/transactions/{id}/corrections", handler.CorrectTransaction).Methods("POST")

	// Catalog
	api.HandleFunc("/companies", handler.ListCompanies).Methods("GET")
	api.HandleFunc("/companies", handler.CreateCompany).Methods("POST")
	api.HandleFunc("/companies/{id}", handler.GetCompany).Methods("GET")
	api.HandleFunc("/companies/{id}", handler.DeleteCompany).Methods("DELETE")
	api.HandleFunc("/companies/{id}/active", handler.SetCompanyActive).Methods("PUT")
	api.HandleFunc("/companies/{id}/stock", handler.GetStock).Methods("GET")
	api.HandleFunc("/companies/{id}/prices", handler.GetPriceHistory).Methods("GET")
	api.HandleFunc("/quotes", handler.ApplyQuote).Methods("POST")

	return r
}
