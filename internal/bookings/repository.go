// Package bookings is the boundary to the hosted booking store. The clinic
// rents its persistence: DynamoDB owns every booking record, this package
// holds transient copies just long enough to decide and mutate.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mwestberg/physiobook/internal/booking"
	"github.com/mwestberg/physiobook/pkg/logging"
)

var tracer = otel.Tracer("physiobook.internal.bookings")

// ErrValidation indicates missing or malformed caller input, e.g. an
// absent authenticated user.
var ErrValidation = errors.New("bookings: validation failed")

// ErrSlotTaken indicates the storage-level slot guard rejected a create
// because another booking already holds the exact slot instant.
var ErrSlotTaken = errors.New("bookings: slot already booked")

const userDateIndex = "user-date-index"

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Notifier receives a payload-free fire after every successful mutation so
// dependent views refetch. This is the system's only cross-session
// coordination signal.
type Notifier interface {
	BookingsChanged(ctx context.Context, userID string)
}

// bookingItem is the persisted shape of one booking.
type bookingItem struct {
	PK          string `dynamodbav:"pk"` // "booking#<id>"
	ID          string `dynamodbav:"id"`
	UserID      string `dynamodbav:"user_id"`
	Date        string `dynamodbav:"date"` // RFC 3339
	ServiceType string `dynamodbav:"service_type"`
	Status      string `dynamodbav:"status"`
	CreatedAt   string `dynamodbav:"created_at"`
	UpdatedAt   string `dynamodbav:"updated_at"`
}

// slotGuard reserves the slot instant itself. Its conditional put is what
// makes two sessions racing for the same slot resolve to one winner.
type slotGuard struct {
	PK        string `dynamodbav:"pk"` // "slot#<RFC 3339>"
	BookingID string `dynamodbav:"booking_id"`
}

func bookingPK(id string) string { return "booking#" + id }

func slotPK(date time.Time) string {
	return "slot#" + date.UTC().Format(time.RFC3339)
}

// Repository persists bookings to DynamoDB.
type Repository struct {
	client   dynamoAPI
	table    string
	notifier Notifier
	logger   *logging.Logger
}

// NewRepository builds a repository backed by the provided DynamoDB client.
// The notifier may be nil when change fan-out is not wired.
func NewRepository(client dynamoAPI, table string, notifier Notifier, logger *logging.Logger) *Repository {
	if client == nil {
		panic("bookings: dynamodb client cannot be nil")
	}
	if table == "" {
		panic("bookings: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{
		client:   client,
		table:    table,
		notifier: notifier,
		logger:   logger,
	}
}

// Create inserts a pending booking. The write is transactional: the booking
// record and the slot guard land together, and the guard's condition fails
// the second writer in a same-slot race with ErrSlotTaken.
func (r *Repository) Create(ctx context.Context, userID string, date time.Time, serviceType booking.ServiceType) (*booking.Booking, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user required for create", ErrValidation)
	}

	ctx, span := tracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(attribute.String("booking.slot", date.Format(time.RFC3339)))

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	item := bookingItem{
		PK:          bookingPK(id),
		ID:          id,
		UserID:      userID,
		Date:        date.Format(time.RFC3339),
		ServiceType: string(serviceType),
		Status:      string(booking.StatusPending),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	bookingAttrs, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("bookings: marshal booking: %w", err)
	}
	guardAttrs, err := attributevalue.MarshalMap(slotGuard{PK: slotPK(date), BookingID: item.ID})
	if err != nil {
		return nil, fmt.Errorf("bookings: marshal slot guard: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.table),
				Item:                bookingAttrs,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.table),
				Item:                guardAttrs,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
		},
	})
	if err != nil {
		if isConditionalCancellation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("bookings: create: %w", err)
	}

	r.logger.Info("booking created", "booking_id", item.ID, "user_id", userID, "date", item.Date)
	r.fireChanged(ctx, userID)

	created, err := item.toBooking()
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Cancel marks the booking cancelled and releases its slot guard. Per
// policy a booking that does not exist, is already cancelled, or belongs to
// someone else is a silent no-op.
func (r *Repository) Cancel(ctx context.Context, bookingID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user required for cancel", ErrValidation)
	}
	if bookingID == "" {
		return fmt.Errorf("%w: booking id required for cancel", ErrValidation)
	}

	ctx, span := tracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID))

	item, err := r.getItem(ctx, bookingPK(bookingID))
	if err != nil {
		return err
	}
	if item == nil || item.UserID != userID || item.Status == string(booking.StatusCancelled) {
		r.logger.Debug("cancel is a no-op", "booking_id", bookingID, "user_id", userID)
		return nil
	}

	date, err := time.Parse(time.RFC3339, item.Date)
	if err != nil {
		return fmt.Errorf("bookings: stored date malformed: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName: aws.String(r.table),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: bookingPK(bookingID)},
				},
				UpdateExpression:    aws.String("SET #status = :cancelled, updated_at = :updated"),
				ConditionExpression: aws.String("user_id = :uid AND #status <> :cancelled"),
				ExpressionAttributeNames: map[string]string{
					"#status": "status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":cancelled": &types.AttributeValueMemberS{Value: string(booking.StatusCancelled)},
					":updated":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
					":uid":       &types.AttributeValueMemberS{Value: userID},
				},
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.table),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: slotPK(date)},
				},
			}},
		},
	})
	if err != nil {
		if isConditionalCancellation(err) {
			// Lost a race with another session's cancel. Same no-op policy.
			return nil
		}
		return fmt.Errorf("bookings: cancel: %w", err)
	}

	r.logger.Info("booking cancelled", "booking_id", bookingID, "user_id", userID)
	r.fireChanged(ctx, userID)
	return nil
}

// ListActive returns the user's non-cancelled bookings ordered by date
// ascending.
func (r *Repository) ListActive(ctx context.Context, userID string) ([]booking.Booking, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user required for list", ErrValidation)
	}

	ctx, span := tracer.Start(ctx, "bookings.list_active")
	defer span.End()

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(userDateIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("#status <> :cancelled"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":       &types.AttributeValueMemberS{Value: userID},
			":cancelled": &types.AttributeValueMemberS{Value: string(booking.StatusCancelled)},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("bookings: list active: %w", err)
	}

	return unmarshalBookings(out.Items)
}

// ListAllActive returns every non-cancelled booking across all users. Slot
// occupancy is global, so the next-slot finder and the analytics both need
// the full set.
func (r *Repository) ListAllActive(ctx context.Context) ([]booking.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.list_all_active")
	defer span.End()

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.table),
			FilterExpression: aws.String("begins_with(pk, :booking) AND #status <> :cancelled"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":booking":   &types.AttributeValueMemberS{Value: "booking#"},
				":cancelled": &types.AttributeValueMemberS{Value: string(booking.StatusCancelled)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("bookings: list all active: %w", err)
		}
		items = append(items, out.Items...)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	bookings, err := unmarshalBookings(items)
	if err != nil {
		return nil, err
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].Date.Before(bookings[j].Date) })
	return bookings, nil
}

func (r *Repository) getItem(ctx context.Context, pk string) (*bookingItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bookings: get item: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var item bookingItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("bookings: unmarshal item: %w", err)
	}
	return &item, nil
}

func (r *Repository) fireChanged(ctx context.Context, userID string) {
	if r.notifier == nil {
		return
	}
	r.notifier.BookingsChanged(ctx, userID)
}

func (i bookingItem) toBooking() (*booking.Booking, error) {
	date, err := time.Parse(time.RFC3339, i.Date)
	if err != nil {
		return nil, fmt.Errorf("bookings: stored date malformed: %w", err)
	}
	return &booking.Booking{
		ID:          i.ID,
		UserID:      i.UserID,
		Date:        date,
		ServiceType: booking.ServiceType(i.ServiceType),
		Status:      booking.Status(i.Status),
	}, nil
}

func unmarshalBookings(items []map[string]types.AttributeValue) ([]booking.Booking, error) {
	out := make([]booking.Booking, 0, len(items))
	for _, raw := range items {
		var item bookingItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("bookings: unmarshal item: %w", err)
		}
		b, err := item.toBooking()
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

// isConditionalCancellation reports whether a transaction failed because a
// condition check lost, as opposed to an infrastructure error.
func isConditionalCancellation(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	for _, reason := range canceled.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
