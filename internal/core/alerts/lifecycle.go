package alerts

import "github.com/sirupsen/logrus"

// BulkResult reports the outcome of a bulk lifecycle operation
type BulkResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids"`
}

// Acknowledge marks an active alert as seen by actor. It returns false only
// when id is not active. Acknowledging twice keeps the first actor and time.
func (e *Engine) Acknowledge(id, actor string) bool {
	e.mu.Lock()
	event, ok := e.acknowledgeLocked(id, actor)
	e.mu.Unlock()

	if event != nil {
		e.publish(*event)
	}
	return ok
}

// Dismiss removes an active alert immediately. The fingerprint recorded when
// the alert was created keeps it from being recreated until the window lapses.
func (e *Engine) Dismiss(id, actor string) bool {
	e.mu.Lock()
	event, ok := e.dismissLocked(id, actor)
	e.mu.Unlock()

	if event != nil {
		e.publish(*event)
	}
	return ok
}

// BulkAcknowledge acknowledges every id, reporting the ones that were not active
func (e *Engine) BulkAcknowledge(ids []string, actor string) BulkResult {
	return e.bulk(ids, actor, e.acknowledgeLocked)
}

// BulkDismiss dismisses every id, reporting the ones that were not active
func (e *Engine) BulkDismiss(ids []string, actor string) BulkResult {
	return e.bulk(ids, actor, e.dismissLocked)
}

func (e *Engine) bulk(ids []string, actor string, op func(id, actor string) (*Event, bool)) BulkResult {
	result := BulkResult{FailedIDs: []string{}}
	var events []Event

	e.mu.Lock()
	for _, id := range ids {
		event, ok := op(id, actor)
		if !ok {
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, id)
			continue
		}
		result.Succeeded++
		if event != nil {
			events = append(events, *event)
		}
	}
	e.mu.Unlock()

	e.publish(events...)
	return result
}

func (e *Engine) acknowledgeLocked(id, actor string) (*Event, bool) {
	alert, ok := e.active[id]
	if !ok {
		return nil, false
	}
	if alert.Acknowledged {
		return nil, true
	}

	now := e.clock.Now()
	alert.Acknowledged = true
	alert.AcknowledgedBy = actor
	alert.AcknowledgedAt = &now

	event := newEvent(ActionAcknowledged, actor, alert, now)
	e.history.add(event)

	e.logger.WithFields(logrus.Fields{
		"alert_id": id,
		"actor":    actor,
	}).Info("Alert acknowledged")

	return &event, true
}

func (e *Engine) dismissLocked(id, actor string) (*Event, bool) {
	alert, ok := e.active[id]
	if !ok {
		return nil, false
	}

	now := e.clock.Now()
	delete(e.active, id)
	e.queue.Remove(id)
	alert.DismissedBy = actor
	alert.DismissedAt = &now
	e.pruneAbsent()

	event := newEvent(ActionDismissed, actor, alert, now)
	e.history.add(event)

	e.logger.WithFields(logrus.Fields{
		"alert_id": id,
		"actor":    actor,
	}).Info("Alert dismissed")

	return &event, true
}

func (e *Engine) publish(events ...Event) {
	if e.publisher == nil || len(events) == 0 {
		return
	}
	e.publisher.Publish(events...)
}
