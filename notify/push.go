package notify

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"campussnap/store"

	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Push sends events as Web Push notifications to every browser the user
// subscribed from.
type Push struct {
	subs       store.PushSubscriptions
	publicKey  string
	privateKey string
	subject    string
	client     webpush.HTTPClient
}

func NewPush(subs store.PushSubscriptions, publicKey, privateKey, subject string) *Push {
	return &Push{
		subs:       subs,
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
		client:     http.DefaultClient,
	}
}

func (p *Push) Notify(ctx context.Context, userID primitive.ObjectID, ev Event) {
	subs, err := p.subs.SubscriptionsFor(ctx, userID)
	if err != nil {
		log.Printf("[Push] failed to load subscriptions for %s: %v", userID.Hex(), err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"title": ev.Title(),
		"data":  ev,
	})
	if err != nil {
		log.Printf("[Push] failed to marshal payload: %v", err)
		return
	}

	for _, s := range subs {
		sub := s.Sub
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &webpush.Options{
			HTTPClient:      p.client,
			Subscriber:      p.subject,
			VAPIDPublicKey:  p.publicKey,
			VAPIDPrivateKey: p.privateKey,
			TTL:             30,
		})
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
				log.Printf("[Push] subscription expired for %s, deleting", userID.Hex())
				if err := p.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
					log.Printf("[Push] failed to delete expired subscription: %v", err)
				}
				continue
			}
		}
		if err != nil {
			log.Printf("[Push] send to %s failed: %v", userID.Hex(), err)
		}
	}
}
