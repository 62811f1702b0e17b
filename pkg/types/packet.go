package types

// PacketStatus is the relay-side delivery state of a packet
type PacketStatus string

const (
	PacketPending    PacketStatus = "pending"
	PacketValidating PacketStatus = "validating"
	PacketExecuting  PacketStatus = "executing"
	PacketExecuted   PacketStatus = "executed"
	PacketFailed     PacketStatus = "failed"
)

// Terminal returns true when the relay will not change the packet again
func (s PacketStatus) Terminal() bool {
	return s == PacketExecuted || s == PacketFailed
}

// PacketData is the relay record of an in-flight cross-chain message
type PacketData struct {
	SrcChainID RelayChainID `json:"src_chain_id"`
	SrcTxHash  string       `json:"src_tx_hash"`
	SrcAddress string       `json:"src_address"`
	Status     PacketStatus `json:"status"`
	DstChainID RelayChainID `json:"dst_chain_id"`
	ConnSn     uint64       `json:"conn_sn"`
	DstAddress string       `json:"dst_address"`
	DstTxHash  string       `json:"dst_tx_hash"`
	Signatures []string     `json:"signatures"`
	Payload    string       `json:"payload"`
}
