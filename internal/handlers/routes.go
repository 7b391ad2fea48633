package handlers

import (
	// External Packages
	"github.com/gorilla/mux"
)

// Register mounts the payment API on router.
func Register(router *mux.Router, payments *PaymentHandler) {
	router.HandleFunc("/", Health).Methods("GET", "HEAD")

	router.HandleFunc("/api/momo/payment", payments.InitiatePayment).Methods("POST")
	router.HandleFunc("/api/momo/status", payments.GetStatus).Methods("GET")
	router.HandleFunc("/api/momo/callback", payments.Callback).Methods("POST", "PUT")
	router.HandleFunc("/api/payments/record", payments.RecordPayment).Methods("POST")
}
