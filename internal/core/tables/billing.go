package tables

import "github.com/JonMunkholm/csvimport/internal/core"

func init() {
	registerInvoices()
	registerPayments()
}

func registerInvoices() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       "invoices",
			Group:     "billing",
			Label:     "Invoices",
			UniqueKey: []string{"Invoice Number"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "Invoice Number", Type: core.FieldText, Required: true, MaxLength: 32},
			{Name: "Customer ID", Type: core.FieldText, Required: true, MaxLength: 32},
			{Name: "Invoice Date", Type: core.FieldDate, Required: true},
			{Name: "Due Date", Type: core.FieldDate},
			{Name: "Currency", Type: core.FieldText, MaxLength: 3, Normalizer: NormalizeCurrency},
			{Name: "Amount", Type: core.FieldNumeric, Required: true},
			{Name: "Status", Type: core.FieldEnum, EnumValues: []string{"draft", "open", "paid", "void"}},
			{Name: "Line Count", Type: core.FieldInteger},
		},
	})
}

func registerPayments() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       "payments",
			Group:     "billing",
			Label:     "Payments",
			UniqueKey: []string{"Payment ID"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "Payment ID", Type: core.FieldUUID, Required: true},
			{Name: "Invoice Number", Type: core.FieldText, Required: true, MaxLength: 32},
			{Name: "Paid At", Type: core.FieldTimestamp, Required: true},
			{Name: "Amount", Type: core.FieldNumeric, Required: true},
			{Name: "Method", Type: core.FieldEnum, EnumValues: []string{"card", "ach", "wire", "check"}},
		},
	})
}
