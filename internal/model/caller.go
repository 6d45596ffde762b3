package model

import (
	"github.com/Freeeeeet/mentor_queue/internal/apperr"
)

// Capability действие движка, требующее проверки роли
type Capability string

const (
	CapManageSlots   Capability = "slots.manage"
	CapViewSlots     Capability = "slots.view"
	CapBook          Capability = "reservations.book"
	CapCancel        Capability = "reservations.cancel"
	CapRefund        Capability = "reservations.refund"
	CapViewSchedule  Capability = "schedule.view"
	CapViewTickets   Capability = "tickets.view"
	CapGrantTickets  Capability = "tickets.grant"
	CapBulkGrant     Capability = "tickets.grant_bulk"
	CapManageProblem Capability = "problems.manage"
	CapRunPublish    Capability = "problems.publish_sweep"
)

var capabilityRoles = map[Capability][]Role{
	CapManageSlots:   {RoleTeacher, RoleAdmin},
	CapViewSlots:     {RoleStudent, RoleTeacher, RoleAdmin},
	CapBook:          {RoleStudent},
	CapCancel:        {RoleStudent, RoleTeacher, RoleAdmin},
	CapRefund:        {RoleTeacher, RoleAdmin},
	CapViewSchedule:  {RoleStudent, RoleTeacher, RoleAdmin},
	CapViewTickets:   {RoleStudent, RoleTeacher, RoleAdmin},
	CapGrantTickets:  {RoleTeacher, RoleAdmin},
	CapBulkGrant:     {RoleAdmin},
	CapManageProblem: {RoleTeacher, RoleAdmin},
	CapRunPublish:    {RoleAdmin},
}

// Caller вызывающий, чья роль получена от провайдера идентичности
type Caller struct {
	ID   int64
	Role Role
}

// System вызывающий для фоновых задач
var System = Caller{ID: 0, Role: RoleAdmin}

// Authorize проверяет что роль вызывающего допускает действие
func (c Caller) Authorize(capability Capability) error {
	if c.Role.Valid() {
		for _, role := range capabilityRoles[capability] {
			if role == c.Role {
				return nil
			}
		}
	}
	return apperr.Forbidden(string(capability), "role %q is not allowed", c.Role)
}
