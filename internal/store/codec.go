package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/itinerary-cli/internal/model"
)

// itemRow is the column projection of an item; the full item is stored as JSON.
type itemRow struct {
	id, tripID, fingerprint, state, kind string
	data                                 []byte
}

func encodeItem(tripID string, it model.ItineraryItem) (itemRow, error) {
	it.TripID = tripID
	data, err := json.Marshal(it)
	if err != nil {
		return itemRow{}, eris.Wrapf(err, "marshal item %s", it.ID)
	}
	return itemRow{
		id:          it.ID,
		tripID:      tripID,
		fingerprint: it.Fingerprint,
		state:       string(it.State),
		kind:        string(it.Kind),
		data:        data,
	}, nil
}

func decodeItem(data []byte) (model.ItineraryItem, error) {
	var it model.ItineraryItem
	if err := json.Unmarshal(data, &it); err != nil {
		return it, eris.Wrap(err, "unmarshal item")
	}
	return it, nil
}

func encodeOutput(out *model.ReconstructionOutput) ([]byte, error) {
	if out == nil {
		return nil, nil
	}
	data, err := json.Marshal(out)
	return data, eris.Wrap(err, "marshal output")
}

func decodeOutput(data []byte) (*model.ReconstructionOutput, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out model.ReconstructionOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "unmarshal output")
	}
	return &out, nil
}

func encodeJSON(v any, what string) ([]byte, error) {
	data, err := json.Marshal(v)
	return data, eris.Wrapf(err, "marshal %s", what)
}

func decodeJSON(data []byte, v any, what string) error {
	if len(data) == 0 {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(data, v), "unmarshal %s", what)
}
