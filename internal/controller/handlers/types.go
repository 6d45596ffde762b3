package handlers

import (
	"github.com/Freeeeeet/mentor_queue/internal/clock"
	"github.com/Freeeeeet/mentor_queue/internal/service"
	"go.uber.org/zap"
)

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	userService        *service.UserService
	reservationService *service.ReservationService
	ticketService      *service.TicketService
	slotService        *service.SlotService
	publishService     *service.PublishService
	clock              clock.Clock
	logger             *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService *service.UserService,
	reservationService *service.ReservationService,
	ticketService *service.TicketService,
	slotService *service.SlotService,
	publishService *service.PublishService,
	clk clock.Clock,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		userService:        userService,
		reservationService: reservationService,
		ticketService:      ticketService,
		slotService:        slotService,
		publishService:     publishService,
		clock:              clk,
		logger:             logger,
	}
}
