package api

// Hello первое сообщение на swarm-соединении, представляет устройство
type Hello struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// Frame единица обмена по swarm-каналу.
// Ответ несет тот же ID, что и запрос, на который он отвечает.
type Frame struct {
	Hello    *Hello    `json:"hello,omitempty"`
	Request  *Request  `json:"request,omitempty"`
	Response *Response `json:"response,omitempty"`
	ID       string    `json:"id,omitempty"`
	From     string    `json:"from"`
}
