package services

import (
	"context"
	"fmt"

	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// DefaultDesignerCapacity is the number of active orders a designer can hold.
const DefaultDesignerCapacity = 5

// ErrNoDesignerAvailable is returned when every designer is at capacity.
var ErrNoDesignerAvailable = chat.NewError(chat.KindNotFound, "NO_DESIGNER_AVAILABLE", "no designer has capacity for this order")

// AssignmentStore is the persistence used for assignment and status changes.
type AssignmentStore interface {
	GetOrder(ctx context.Context, id uint) (*models.DesignOrder, error)
	ListDesigners(ctx context.Context) ([]models.Profile, error)
	DesignerLoads(ctx context.Context) ([]store.DesignerLoad, error)
	AssignDesigner(ctx context.Context, orderID, designerID uint) (bool, error)
	TransitionOrder(ctx context.Context, stage *models.OrderStage) (bool, error)
	RecordStage(ctx context.Context, stage *models.OrderStage) error
}

// SystemPoster posts system messages on an order's thread.
type SystemPoster interface {
	SendSystem(ctx context.Context, orderID uint, content string) (*models.ChatMessage, error)
}

// ProfileNotifier raises a best-effort alert for one profile.
type ProfileNotifier interface {
	NotifyProfile(ctx context.Context, profileID uint, title, body string, orderID uint)
}

// AssignmentService picks designers for orders and moves orders through
// their stages.
type AssignmentService struct {
	store    AssignmentStore
	poster   SystemPoster
	notifier ProfileNotifier
	capacity int
}

// NewAssignmentService creates an AssignmentService. notifier may be nil.
func NewAssignmentService(s AssignmentStore, poster SystemPoster, notifier ProfileNotifier, capacity int) *AssignmentService {
	if capacity <= 0 {
		capacity = DefaultDesignerCapacity
	}
	return &AssignmentService{store: s, poster: poster, notifier: notifier, capacity: capacity}
}

// AssignDesigner gives an unassigned active order to the designer with the
// fewest active orders below capacity. Ties go to the lowest id.
func (s *AssignmentService) AssignDesigner(ctx context.Context, orderID uint, actor *models.Profile) (*models.DesignOrder, error) {
	if !actor.Role.IsStaff() {
		return nil, chat.NewError(chat.KindUnauthorized, "STAFF_ONLY", "only staff can assign designers")
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, chat.FromStore(err, "get order", chat.CodeOrderNotFound)
	}
	if order.DesignerID != nil {
		return nil, chat.NewError(chat.KindValidation, "ALREADY_ASSIGNED", "order already has a designer")
	}
	if !order.Status.Active() {
		return nil, chat.NewError(chat.KindValidation, "ORDER_CLOSED", "only pending or in-progress orders can be assigned")
	}

	designer, err := s.pickDesigner(ctx)
	if err != nil {
		return nil, err
	}

	assigned, err := s.store.AssignDesigner(ctx, orderID, designer.ID)
	if err != nil {
		return nil, chat.FromStore(err, "assign designer", chat.CodeOrderNotFound)
	}
	if !assigned {
		return nil, chat.NewError(chat.KindValidation, "ALREADY_ASSIGNED", "order was assigned concurrently")
	}
	jww.INFO.Printf("[ASSIGN] Order %d assigned to designer %d by %d", orderID, designer.ID, actor.ID)

	stage := &models.OrderStage{
		OrderID:    orderID,
		FromStatus: order.Status,
		ToStatus:   order.Status,
		ActorID:    actor.ID,
		Note:       fmt.Sprintf("Assigned to designer %s", designer.Name),
	}
	if err := s.store.RecordStage(ctx, stage); err != nil {
		jww.WARN.Printf("[ASSIGN] Failed to record assignment stage for order %d: %v", orderID, err)
	}

	s.post(ctx, orderID, fmt.Sprintf("Designer %s has been assigned to this order", designer.Name))
	s.notify(designer.ID, "New order assigned", fmt.Sprintf("Order #%d (%s) is yours", orderID, order.DesignType), orderID)

	return s.reload(ctx, orderID)
}

func (s *AssignmentService) pickDesigner(ctx context.Context) (*models.Profile, error) {
	designers, err := s.store.ListDesigners(ctx)
	if err != nil {
		return nil, chat.FromStore(err, "list designers", "DESIGNER_NOT_FOUND")
	}
	loads, err := s.store.DesignerLoads(ctx)
	if err != nil {
		return nil, chat.FromStore(err, "count designer loads", "DESIGNER_NOT_FOUND")
	}

	active := make(map[uint]int64, len(loads))
	for _, l := range loads {
		active[l.DesignerID] = l.Active
	}

	var best *models.Profile
	var bestLoad int64
	for i := range designers {
		d := &designers[i]
		load := active[d.ID]
		if load >= int64(s.capacity) {
			continue
		}
		if best == nil || load < bestLoad || (load == bestLoad && d.ID < best.ID) {
			best, bestLoad = d, load
		}
	}
	if best == nil {
		return nil, ErrNoDesignerAvailable
	}
	return best, nil
}

// UpdateStatus moves an order one step forward. Designers may only move
// orders assigned to them; admins may move any order.
func (s *AssignmentService) UpdateStatus(ctx context.Context, orderID uint, actor *models.Profile, next models.OrderStatus, note string) (*models.DesignOrder, error) {
	if !actor.Role.IsStaff() {
		return nil, chat.NewError(chat.KindUnauthorized, "STAFF_ONLY", "only staff can change order status")
	}
	if !next.Valid() {
		return nil, chat.NewError(chat.KindValidation, "INVALID_STATUS", "unknown order status")
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, chat.FromStore(err, "get order", chat.CodeOrderNotFound)
	}
	if actor.Role == models.RoleDesigner && (order.DesignerID == nil || *order.DesignerID != actor.ID) {
		return nil, chat.NewError(chat.KindUnauthorized, "NOT_ASSIGNED", "order is not assigned to you")
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, chat.NewError(chat.KindValidation, "INVALID_TRANSITION",
			fmt.Sprintf("cannot move order from %s to %s", order.Status, next))
	}

	moved, err := s.store.TransitionOrder(ctx, &models.OrderStage{
		OrderID:    orderID,
		FromStatus: order.Status,
		ToStatus:   next,
		ActorID:    actor.ID,
		Note:       note,
	})
	if err != nil {
		return nil, chat.FromStore(err, "transition order", chat.CodeOrderNotFound)
	}
	if !moved {
		return nil, chat.NewError(chat.KindValidation, "STATUS_CONFLICT", "order status changed concurrently")
	}
	jww.INFO.Printf("[ASSIGN] Order %d moved %s -> %s by %d", orderID, order.Status, next, actor.ID)

	s.post(ctx, orderID, fmt.Sprintf("Order status changed to %s", next))
	s.notify(order.ClientID, "Order update", fmt.Sprintf("Order #%d is now %s", orderID, next), orderID)

	return s.reload(ctx, orderID)
}

func (s *AssignmentService) post(ctx context.Context, orderID uint, content string) {
	if s.poster == nil {
		return
	}
	if _, err := s.poster.SendSystem(ctx, orderID, content); err != nil {
		jww.WARN.Printf("[ASSIGN] Failed to post system message on order %d: %v", orderID, err)
	}
}

func (s *AssignmentService) notify(profileID uint, title, body string, orderID uint) {
	if s.notifier == nil {
		return
	}
	go s.notifier.NotifyProfile(context.Background(), profileID, title, body, orderID)
}

func (s *AssignmentService) reload(ctx context.Context, orderID uint) (*models.DesignOrder, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(chat.FromStore(err, "get order", chat.CodeOrderNotFound), "reload order")
	}
	return order, nil
}
