package remote

import "errors"

var (
	// ErrUnauthorized is returned when a websocket token is missing or invalid
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTelegramAPI wraps non-ok responses from the bot API
	ErrTelegramAPI = errors.New("telegram api error")
)
