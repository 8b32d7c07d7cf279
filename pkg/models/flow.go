package models

import (
	"time"
)

// TenantFlow is the operator-visible record of a tenant's flow of a given
// type. At most one flow per (tenant, flow type) exists; the step driver
// keeps its status and state in sync with the owning workflow. Every change
// to status or state appends exactly one TimelineEntry (database trigger).
type TenantFlow struct {
	ID                string            `json:"id" db:"id"`
	TenantID          string            `json:"tenant_id" db:"tenant_id"`
	FlowType          WorkflowType      `json:"flow_type" db:"flow_type"`
	Status            FlowStatusType    `json:"status" db:"status"`
	State             WorkflowStateType `json:"state" db:"state"`
	CompletedValue    *string           `json:"completed_value,omitempty" db:"completed_value"`
	ErrorStatusDetail *string           `json:"error_status_detail,omitempty" db:"error_status_detail"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// TenantFlowPatch carries the mutable flow fields for an update.
type TenantFlowPatch struct {
	Status            FlowStatusType
	State             WorkflowStateType
	CompletedValue    *string
	ErrorStatusDetail *string
}

// TimelineEntry is one row of the append-only audit log for a flow record.
type TimelineEntry struct {
	ID                string            `json:"id" db:"id"`
	ItemID            string            `json:"item_id" db:"item_id"`
	Status            FlowStatusType    `json:"status" db:"status"`
	State             WorkflowStateType `json:"state" db:"state"`
	ErrorStatusDetail *string           `json:"error_status_detail,omitempty" db:"error_status_detail"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}
