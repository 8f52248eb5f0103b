package parsers

import "fmt"

// templates holds a downloadable CSV skeleton per table: the canonical header
// row plus one illustrative data row.
var templates = map[string]string{
	TableAccounts: "account_id,account_name,account_status,email_domain\n" +
		"ACC-001,Acme Corporation,active,acme.com\n",
	TableCustomers: "customer_id,customer_name,customer_status,email_domain\n" +
		"CUS-001,Acme Corp,active,acme.com\n",
	TableSubscriptions: "subscription_id,account_id,start_date,end_date,mrr,currency,pricing_model,ramp_schedule\n" +
		`SUB-001,ACC-001,2024-01-01,2024-12-31,1000.00,USD,ramp,"[{""effective_date"":""2024-07-01"",""mrr"":1500}]"` + "\n",
	TableInvoices: "invoice_id,customer_id,subscription_id,invoice_date,period_start,period_end,amount,status\n" +
		"INV-001,CUS-001,SUB-001,2024-01-01,2024-01-01,2024-01-31,1000.00,paid\n",
	TablePayments: "payment_id,invoice_id,payment_date,amount\n" +
		"PAY-001,INV-001,2024-01-15,1000.00\n",
	TableCreditNotes: "credit_note_id,customer_id,invoice_id,credit_date,amount,reason\n" +
		"CN-001,CUS-001,INV-001,2024-02-05,200.00,service credit\n",
}

// Template returns the CSV template for the named table.
func Template(table string) (string, error) {
	t, ok := templates[table]
	if !ok {
		return "", fmt.Errorf("no template for table %q", table)
	}
	return t, nil
}

// TemplateNames lists the tables that have downloadable templates.
func TemplateNames() []string {
	return append([]string(nil), TableNames...)
}
