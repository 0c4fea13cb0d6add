package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/pion/ion-ortc/pkg/ortc"
	"github.com/pion/ion-ortc/pkg/sfu"
)

// Methods of the signaling protocol.
const (
	MethodGetRouterCapabilities  = "getRouterCapabilities"
	MethodCreateWebRtcTransport  = "createWebRtcTransport"
	MethodConnectWebRtcTransport = "connectWebRtcTransport"
	MethodProduce                = "produce"
	MethodConsume                = "consume"
	MethodCloseTransport         = "closeTransport"
	MethodCloseProducer          = "closeProducer"
	MethodCloseConsumer          = "closeConsumer"
)

// CreateWebRtcTransportRequest are the params of createWebRtcTransport.
type CreateWebRtcTransportRequest struct {
	EnableUDP        *bool                  `json:"enableUdp"`
	EnableTCP        *bool                  `json:"enableTcp"`
	PreferUDP        *bool                  `json:"preferUdp"`
	PreferTCP        bool                   `json:"preferTcp"`
	EnableSCTP       bool                   `json:"enableSctp"`
	SctpCapabilities *ortc.SctpCapabilities `json:"sctpCapabilities"`
	AppData          map[string]interface{} `json:"appData"`
}

func (r *CreateWebRtcTransportRequest) validate() error {
	switch {
	case r.EnableUDP == nil:
		return required("enableUdp")
	case r.EnableTCP == nil:
		return required("enableTcp")
	case r.PreferUDP == nil:
		return required("preferUdp")
	}
	return nil
}

func (r *CreateWebRtcTransportRequest) options() sfu.TransportOptions {
	return sfu.TransportOptions{
		EnableUDP:        *r.EnableUDP,
		EnableTCP:        *r.EnableTCP,
		PreferUDP:        *r.PreferUDP,
		PreferTCP:        r.PreferTCP,
		EnableSCTP:       r.EnableSCTP,
		SctpCapabilities: r.SctpCapabilities,
		AppData:          r.AppData,
	}
}

// ConnectWebRtcTransportRequest are the params of connectWebRtcTransport.
type ConnectWebRtcTransportRequest struct {
	TransportID    string               `json:"transportId"`
	DtlsParameters *ortc.DtlsParameters `json:"dtlsParameters"`
}

func (r *ConnectWebRtcTransportRequest) validate() error {
	switch {
	case r.TransportID == "":
		return required("transportId")
	case r.DtlsParameters == nil:
		return required("dtlsParameters")
	}
	return nil
}

// ProduceRequest are the params of produce.
type ProduceRequest struct {
	TransportID   string                 `json:"transportId"`
	Kind          string                 `json:"kind"`
	RtpParameters *ortc.RtpParameters    `json:"rtpParameters"`
	AppData       map[string]interface{} `json:"appData"`
}

func (r *ProduceRequest) validate() error {
	switch {
	case r.TransportID == "":
		return required("transportId")
	case r.Kind == "":
		return required("kind")
	case r.RtpParameters == nil:
		return required("rtpParameters")
	}
	return nil
}

// ConsumeRequest are the params of consume. Clients that only speak SDP send
// sdp instead of rtpCapabilities.
type ConsumeRequest struct {
	TransportID     string                `json:"transportId"`
	ProducerID      string                `json:"producerId"`
	RtpCapabilities *ortc.RtpCapabilities `json:"rtpCapabilities"`
	SDP             string                `json:"sdp"`
}

func (r *ConsumeRequest) validate() error {
	switch {
	case r.TransportID == "":
		return required("transportId")
	case r.ProducerID == "":
		return required("producerId")
	case r.RtpCapabilities == nil && r.SDP == "":
		return required("rtpCapabilities")
	case r.RtpCapabilities != nil && r.SDP != "":
		return fmt.Errorf("%w: rtpCapabilities and sdp are exclusive", sfu.ErrInvalidRequest)
	}
	return nil
}

// The close methods only take the id of the object they close.
type closeTransportRequest struct {
	TransportID string `json:"transportId"`
}

type closeProducerRequest struct {
	ProducerID string `json:"producerId"`
}

type closeConsumerRequest struct {
	ConsumerID string `json:"consumerId"`
}

type emptyRequest struct{}

func required(field string) error {
	return fmt.Errorf("%w: missing %s", sfu.ErrInvalidRequest, field)
}

var fieldCache sync.Map

// fields returns the json keys of the struct v points to.
func fields(v interface{}) map[string]bool {
	t := reflect.TypeOf(v).Elem()
	if f, ok := fieldCache.Load(t); ok {
		return f.(map[string]bool)
	}
	f := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if name != "" && name != "-" {
			f[name] = true
		}
	}
	fieldCache.Store(t, f)
	return f
}

// decode unmarshals params into v, rejecting top-level fields v does not
// declare. Absent params decode as an empty object.
func decode(params json.RawMessage, v interface{}) error {
	params = bytes.TrimSpace(params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = []byte("{}")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(params, &top); err != nil {
		return fmt.Errorf("%w: params must be an object", sfu.ErrInvalidRequest)
	}
	known := fields(v)
	for k := range top {
		if !known[k] {
			return fmt.Errorf("%w: unknown field %q", sfu.ErrInvalidRequest, k)
		}
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %v", sfu.ErrInvalidRequest, err)
	}
	return nil
}
