package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names
const (
	TableSequences         = "sequences"
	TableInvoices          = "invoices"
	TablePayments          = "payments"
	TableExecutions        = "executions"
	TableStepRecords       = "step_execution_records"
	TableOrganizationHours = "organization_hours"
)

func idColumn() *schema.Column {
	return &schema.Column{Name: "id", Type: field.TypeInt64, Increment: true}
}

func col(name string, t field.Type) *schema.Column {
	return &schema.Column{Name: name, Type: t}
}

func nullable(name string, t field.Type) *schema.Column {
	return &schema.Column{Name: name, Type: t, Nullable: true}
}

func withDefault(name string, t field.Type, v any) *schema.Column {
	return &schema.Column{Name: name, Type: t, Default: v}
}

// Tables returns the schema in dependency order
func Tables() []*schema.Table {
	sequences := schema.NewTable(TableSequences).
		AddPrimary(idColumn()).
		AddColumn(col("organization_id", field.TypeInt64)).
		AddColumn(col("name", field.TypeString)).
		AddColumn(withDefault("active", field.TypeBool, true)).
		AddColumn(col("steps", field.TypeJSON)).
		AddColumn(col("created_at", field.TypeTime)).
		AddColumn(col("updated_at", field.TypeTime))
	sequences.AddIndex("sequences_organization_id", false, []string{"organization_id"})

	invoices := schema.NewTable(TableInvoices).
		AddPrimary(idColumn()).
		AddColumn(col("organization_id", field.TypeInt64)).
		AddColumn(col("number", field.TypeString)).
		AddColumn(col("status", field.TypeString)).
		AddColumn(col("due_date", field.TypeTime)).
		AddColumn(withDefault("currency", field.TypeString, "AED")).
		AddColumn(col("amount", field.TypeFloat64)).
		AddColumn(col("customer_name", field.TypeString)).
		AddColumn(col("customer_email", field.TypeString)).
		AddColumn(withDefault("customer_phone", field.TypeString, "")).
		AddColumn(withDefault("customer_tier", field.TypeString, "REGULAR")).
		AddColumn(withDefault("country_code", field.TypeString, "AE"))
	invoices.AddIndex("invoices_organization_id", false, []string{"organization_id"})

	paymentInvoice := col("invoice_id", field.TypeInt64)
	payments := schema.NewTable(TablePayments).
		AddPrimary(idColumn()).
		AddColumn(paymentInvoice).
		AddColumn(col("amount", field.TypeFloat64)).
		AddColumn(col("currency", field.TypeString)).
		AddColumn(col("provider", field.TypeString)).
		AddColumn(col("provider_reference", field.TypeString)).
		AddColumn(col("paid_at", field.TypeTime))
	payments.AddIndex("payments_provider_reference", true, []string{"provider", "provider_reference"})
	payments.AddIndex("payments_invoice_id", false, []string{"invoice_id"})
	payments.AddForeignKey(&schema.ForeignKey{
		Symbol:     "payments_invoices_payments",
		Columns:    []*schema.Column{paymentInvoice},
		RefTable:   invoices,
		RefColumns: []*schema.Column{invoices.PrimaryKey[0]},
		OnDelete:   schema.Cascade,
	})

	execSequence := col("sequence_id", field.TypeInt64)
	execInvoice := col("invoice_id", field.TypeInt64)
	executions := schema.NewTable(TableExecutions).
		AddPrimary(idColumn()).
		AddColumn(execSequence).
		AddColumn(execInvoice).
		AddColumn(col("organization_id", field.TypeInt64)).
		AddColumn(col("trigger_type", field.TypeString)).
		AddColumn(withDefault("trigger_value", field.TypeString, "")).
		AddColumn(withDefault("trigger_operator", field.TypeString, "")).
		AddColumn(withDefault("current_step", field.TypeInt, 0)).
		AddColumn(col("status", field.TypeString)).
		AddColumn(nullable("next_send_at", field.TypeTime)).
		AddColumn(withDefault("stop_reason", field.TypeString, "")).
		AddColumn(withDefault("last_error", field.TypeString, "")).
		AddColumn(withDefault("version", field.TypeInt, 1)).
		AddColumn(col("created_at", field.TypeTime)).
		AddColumn(col("updated_at", field.TypeTime)).
		AddColumn(nullable("completed_at", field.TypeTime)).
		AddColumn(nullable("stopped_at", field.TypeTime))
	executions.AddIndex("executions_status_next_send_at", false, []string{"status", "next_send_at"})
	executions.AddIndex("executions_invoice_id", false, []string{"invoice_id"})
	executions.AddIndex("executions_sequence_id_created_at", false, []string{"sequence_id", "created_at"})
	executions.AddForeignKey(&schema.ForeignKey{
		Symbol:     "executions_sequences_executions",
		Columns:    []*schema.Column{execSequence},
		RefTable:   sequences,
		RefColumns: []*schema.Column{sequences.PrimaryKey[0]},
		OnDelete:   schema.NoAction,
	})
	executions.AddForeignKey(&schema.ForeignKey{
		Symbol:     "executions_invoices_executions",
		Columns:    []*schema.Column{execInvoice},
		RefTable:   invoices,
		RefColumns: []*schema.Column{invoices.PrimaryKey[0]},
		OnDelete:   schema.NoAction,
	})

	recExecution := col("execution_id", field.TypeInt64)
	records := schema.NewTable(TableStepRecords).
		AddPrimary(idColumn()).
		AddColumn(recExecution).
		AddColumn(col("sequence_id", field.TypeInt64)).
		AddColumn(col("step_number", field.TypeInt)).
		AddColumn(col("subject", field.TypeString)).
		AddColumn(&schema.Column{Name: "body", Type: field.TypeString, Size: 2147483647}).
		AddColumn(col("language", field.TypeString)).
		AddColumn(col("recipient_email", field.TypeString)).
		AddColumn(col("scheduled_for", field.TypeTime)).
		AddColumn(nullable("sent_at", field.TypeTime)).
		AddColumn(col("status", field.TypeString)).
		AddColumn(withDefault("provider_message_id", field.TypeString, "")).
		AddColumn(nullable("opened_at", field.TypeTime)).
		AddColumn(nullable("clicked_at", field.TypeTime)).
		AddColumn(nullable("responded_at", field.TypeTime)).
		AddColumn(withDefault("retry_count", field.TypeInt, 0)).
		AddColumn(nullable("error_message", field.TypeString)).
		AddColumn(col("created_at", field.TypeTime))
	records.AddIndex("step_execution_records_execution_id", false, []string{"execution_id"})
	records.AddIndex("step_execution_records_sequence_id_created_at", false, []string{"sequence_id", "created_at"})
	records.AddIndex("step_execution_records_provider_message_id", false, []string{"provider_message_id"})
	records.AddForeignKey(&schema.ForeignKey{
		Symbol:     "step_execution_records_executions_records",
		Columns:    []*schema.Column{recExecution},
		RefTable:   executions,
		RefColumns: []*schema.Column{executions.PrimaryKey[0]},
		OnDelete:   schema.Cascade,
	})

	hours := schema.NewTable(TableOrganizationHours).
		AddPrimary(&schema.Column{Name: "organization_id", Type: field.TypeInt64}).
		AddColumn(col("working_days", field.TypeString)).
		AddColumn(col("start_hour", field.TypeInt)).
		AddColumn(col("end_hour", field.TypeInt))

	return []*schema.Table{sequences, invoices, payments, executions, records, hours}
}

// Migrate creates or updates every table
func (c *Client) Migrate(ctx context.Context) error {
	migrate, err := schema.NewMigrate(c.Driver)
	if err != nil {
		return fmt.Errorf("failed creating migration: %w", err)
	}
	if err := migrate.Create(ctx, Tables()...); err != nil {
		return fmt.Errorf("failed creating schema resources: %w", err)
	}
	return nil
}
