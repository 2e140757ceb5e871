package mqtt

import "fmt"

// maxPayloadSize caps publish payloads at 1MB. Anything larger is a bug,
// not a legitimate bridge message.
const maxPayloadSize = 1024 * 1024

// Publish sends a message and, for QoS > 0, waits for the broker's
// acknowledgment.
//
// Parameters:
//   - topic: Target topic (e.g. "nikobus/result/cover-living-1")
//   - payload: Message content, typically JSON
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Store the message on the broker for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, tokenTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
