package messaging

import (
	"context"
	"fmt"

	"github.com/itp-watch/itp-monitor-v2/internal/models"
)

// Topics published by the check scheduler
const (
	TopicCheckCompleted = "check_completed"
	TopicCheckFailed    = "check_failed"
)

// Subscriber function type
type SubscriberFunc func(id int, subscriberName string, ch <-chan SubscribedMessage, results chan<- SubscriberResult)

// StateSink is where a check result ends up as externally visible state.
// The MQTT state publisher implements this.
type StateSink interface {
	PublishCheck(ctx context.Context, check *models.InspectionCheckModel) error
}

func PrintResults(id int, subscriberName string, ch <-chan SubscribedMessage, results chan<- SubscriberResult) {
	count := 0
	for msg := range ch {
		content := msg.GetContent()
		if content.Check == nil {
			continue
		}

		check := content.Check
		fmt.Printf("check result for %s: status=%s expiration=%s attempts=%d \n",
			check.Vin, check.Status, check.ExpirationDate, check.Attempts)
		count++
	}

	if results != nil {
		results <- SubscriberResult{
			SubscriberID:   id,
			SubscriberName: subscriberName,
			ResultData:     map[string]interface{}{"printed": count},
		}
	}
}

// NewStateSubscriber returns a subscriber which forwards completed checks to
// the given sink. Failed checks go through too so the sink can expose the
// Unknown state.
func NewStateSubscriber(sink StateSink) SubscriberFunc {
	return func(id int, subscriberName string, ch <-chan SubscribedMessage, results chan<- SubscriberResult) {
		published := 0
		var lastErr error

		for msg := range ch {
			content := msg.GetContent()
			if content.Check == nil {
				continue
			}

			if err := sink.PublishCheck(context.Background(), content.Check); err != nil {
				fmt.Printf("could not publish state for %s: %v \n", content.Check.Vin, err)
				lastErr = err
				continue
			}
			published++
		}

		if results != nil {
			resultData := map[string]interface{}{"published": published}
			if lastErr != nil {
				resultData["error"] = lastErr.Error()
			}
			results <- SubscriberResult{
				SubscriberID:   id,
				SubscriberName: subscriberName,
				ResultData:     resultData,
			}
		}
	}
}
