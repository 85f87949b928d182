package tables

import (
	"strings"

	"github.com/JonMunkholm/csvimport/internal/core"
)

func init() {
	registerCustomers()
	registerContacts()
}

func registerCustomers() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       "customers",
			Group:     "crm",
			Label:     "Customers",
			UniqueKey: []string{"Customer ID"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "Customer ID", Type: core.FieldText, Required: true, MaxLength: 32},
			{Name: "Name", Type: core.FieldText, Required: true, MaxLength: 200},
			{Name: "Email", Type: core.FieldText, MaxLength: 254, Normalizer: strings.ToLower},
			{Name: "State", Type: core.FieldText, MaxLength: 2, Normalizer: NormalizeUsState},
			{Name: "Segment", Type: core.FieldEnum, EnumValues: []string{"smb", "mid-market", "enterprise"}},
			{Name: "Active", Type: core.FieldBool},
			{Name: "Created On", Type: core.FieldDate},
		},
	})
}

func registerContacts() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       "contacts",
			Group:     "crm",
			Label:     "Contacts",
			UniqueKey: []string{"Contact ID"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "Contact ID", Type: core.FieldUUID, Required: true},
			{Name: "Customer ID", Type: core.FieldText, Required: true, MaxLength: 32},
			{Name: "First Name", Type: core.FieldText, MaxLength: 100},
			{Name: "Last Name", Type: core.FieldText, Required: true, MaxLength: 100},
			{Name: "Phone", Type: core.FieldText, MaxLength: 32, Normalizer: NormalizePhone},
			{Name: "Title", DBColumn: "job_title", Type: core.FieldText, AllowEmpty: true, MaxLength: 100},
		},
	})
}
