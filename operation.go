package indexq

import (
	"encoding/binary"
	"fmt"
)

// OperationKind tags the variant an Operation carries.
type OperationKind uint8

const (
	// OpUpsert is a batch of record payloads to be (re)indexed.
	OpUpsert OperationKind = iota
	// OpDelete is a batch of record identifiers to be removed from the index.
	OpDelete
)

func (k OperationKind) String() string {
	switch k {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// operationSchemaVersion is the on-disk schema version of encoded operations.
// Bump it on any incompatible change to the binary layout.
const operationSchemaVersion = 1

// Record is a single opaque record payload addressed by its identifier.
// Indexq never interprets Data; encoding is the caller's concern.
type Record struct {
	ID   string
	Data []byte
}

// Operation is the unit of buffered work: either an upsert batch or a delete
// batch, selected by Kind.
//
// For OpUpsert only Records is meaningful. For OpDelete only DeleteIDs,
// DeleteTenantID and DeleteTable are meaningful.
type Operation struct {
	Kind           OperationKind
	Records        []Record
	DeleteIDs      []string
	DeleteTenantID int64
	DeleteTable    string
}

// NewUpsert builds an upsert operation over the given records.
func NewUpsert(records []Record) Operation {
	return Operation{Kind: OpUpsert, Records: records}
}

// NewDelete builds a delete operation for the given ids.
func NewDelete(tenantID int64, table string, ids []string) Operation {
	return Operation{Kind: OpDelete, DeleteIDs: ids, DeleteTenantID: tenantID, DeleteTable: table}
}

// IsDelete reports whether the operation is a delete batch.
func (op Operation) IsDelete() bool { return op.Kind == OpDelete }

// MarshalBinary encodes the operation into its versioned binary form.
//
// Layout (little-endian):
//
//	[version:1][kind:1]
//	upsert: [count:4] then per record [idLen:2][id][dataLen:4][data]
//	delete: [tenantID:8][tableLen:2][table][count:4] then per id [idLen:2][id]
func (op Operation) MarshalBinary() ([]byte, error) {
	switch op.Kind {
	case OpUpsert:
		n := 6
		for _, r := range op.Records {
			if len(r.ID) > maxIDLen {
				return nil, fmt.Errorf("record id too long: %d bytes", len(r.ID))
			}
			n += 6 + len(r.ID) + len(r.Data)
		}
		buf := make([]byte, 0, n)
		buf = append(buf, operationSchemaVersion, byte(OpUpsert))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(op.Records)))
		for _, r := range op.Records {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.ID)))
			buf = append(buf, r.ID...)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Data)))
			buf = append(buf, r.Data...)
		}
		return buf, nil

	case OpDelete:
		if len(op.DeleteTable) > maxIDLen {
			return nil, fmt.Errorf("table name too long: %d bytes", len(op.DeleteTable))
		}
		n := 16 + len(op.DeleteTable)
		for _, id := range op.DeleteIDs {
			if len(id) > maxIDLen {
				return nil, fmt.Errorf("delete id too long: %d bytes", len(id))
			}
			n += 2 + len(id)
		}
		buf := make([]byte, 0, n)
		buf = append(buf, operationSchemaVersion, byte(OpDelete))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(op.DeleteTenantID))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(op.DeleteTable)))
		buf = append(buf, op.DeleteTable...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(op.DeleteIDs)))
		for _, id := range op.DeleteIDs {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(id)))
			buf = append(buf, id...)
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("unknown operation kind: %d", op.Kind)
	}
}

const maxIDLen = 1<<16 - 1

// UnmarshalBinary decodes an operation from its binary form. Corrupt or
// truncated input is a hard failure.
func (op *Operation) UnmarshalBinary(data []byte) error {
	d := opDecoder{buf: data}

	version, err := d.byte()
	if err != nil {
		return err
	}
	if version != operationSchemaVersion {
		return fmt.Errorf("unsupported operation schema version: %d", version)
	}
	kind, err := d.byte()
	if err != nil {
		return err
	}

	switch OperationKind(kind) {
	case OpUpsert:
		count, err := d.uint32()
		if err != nil {
			return err
		}
		records, err := decodeRecords(&d, count)
		if err != nil {
			return err
		}
		*op = Operation{Kind: OpUpsert, Records: records}

	case OpDelete:
		tenantID, err := d.uint64()
		if err != nil {
			return err
		}
		table, err := d.shortString()
		if err != nil {
			return err
		}
		count, err := d.uint32()
		if err != nil {
			return err
		}
		ids := make([]string, 0, min(int(count), 1024))
		for i := uint32(0); i < count; i++ {
			id, err := d.shortString()
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		*op = Operation{Kind: OpDelete, DeleteIDs: ids, DeleteTenantID: int64(tenantID), DeleteTable: table}

	default:
		return fmt.Errorf("unknown operation kind: %d", kind)
	}

	if d.len() != 0 {
		return fmt.Errorf("trailing garbage after operation: %d bytes", d.len())
	}
	return nil
}

func decodeRecords(d *opDecoder, count uint32) ([]Record, error) {
	records := make([]Record, 0, min(int(count), 1024))
	for i := uint32(0); i < count; i++ {
		id, err := d.shortString()
		if err != nil {
			return nil, err
		}
		payload, err := d.bytes32()
		if err != nil {
			return nil, err
		}
		records = append(records, Record{ID: id, Data: payload})
	}
	return records, nil
}

// opDecoder is a bounds-checked cursor over encoded operation bytes.
type opDecoder struct {
	buf []byte
	off int
}

func (d *opDecoder) len() int { return len(d.buf) - d.off }

func (d *opDecoder) take(n int) ([]byte, error) {
	if d.len() < n {
		return nil, fmt.Errorf("truncated operation: need %d bytes at offset %d, have %d", n, d.off, d.len())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *opDecoder) byte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *opDecoder) uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *opDecoder) uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *opDecoder) shortString() (string, error) {
	lb, err := d.take(2)
	if err != nil {
		return "", err
	}
	b, err := d.take(int(binary.LittleEndian.Uint16(lb)))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *opDecoder) bytes32() ([]byte, error) {
	lb, err := d.take(4)
	if err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(lb))
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

