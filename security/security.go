// Package security implements the standard security handler used to
// decrypt password-protected PDFs (revisions 2 to 4 and 6).
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wudi/charterkit/ir/raw"
)

var (
	ErrUnsupportedEncryption = errors.New("unsupported encryption")
	ErrBadPassword           = errors.New("incorrect password")
)

type cryptMethod int

const (
	methodIdentity cryptMethod = iota
	methodRC4
	methodAESV2
	methodAESV3
)

// Handler decrypts (and encrypts) strings and streams of one document.
type Handler struct {
	r               int
	key             []byte
	stream, str     cryptMethod
	encryptMetadata bool
	owner           bool
}

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// New authenticates password against the /Encrypt dictionary. The password
// is tried as the user password first and then as the owner password.
func New(encrypt *raw.DictObj, fileID []byte, password string) (*Handler, error) {
	if filter, _ := encrypt.Name("Filter"); filter != "Standard" {
		return nil, fmt.Errorf("%w: filter %q", ErrUnsupportedEncryption, filter)
	}
	v, _ := encrypt.Int("V")
	r, _ := encrypt.Int("R")
	h := &Handler{r: int(r), encryptMetadata: true}
	if em, ok := encrypt.Get("EncryptMetadata"); ok {
		if b, ok := em.(raw.BoolObj); ok {
			h.encryptMetadata = b.V
		}
	}
	o, _ := encrypt.String("O")
	u, _ := encrypt.String("U")
	p, _ := encrypt.Int("P")

	switch {
	case r >= 2 && r <= 4:
		keyLen := 5
		if v >= 2 {
			if bits, ok := encrypt.Int("Length"); ok && bits >= 40 {
				keyLen = int(bits / 8)
			} else {
				keyLen = 16
			}
		}
		h.stream, h.str = methodRC4, methodRC4
		if v == 4 {
			var err error
			if h.stream, err = cryptFilterMethod(encrypt, "StmF"); err != nil {
				return nil, err
			}
			if h.str, err = cryptFilterMethod(encrypt, "StrF"); err != nil {
				return nil, err
			}
			keyLen = 16
		}
		if len(o) < 32 || len(u) < 32 {
			return nil, fmt.Errorf("%w: short O/U entries", ErrUnsupportedEncryption)
		}
		pwd := []byte(password)
		key := computeKey(pwd, o[:32], int32(p), fileID, keyLen, h.r, h.encryptMetadata)
		if checkUser(key, u, fileID, h.r) {
			h.key = key
			return h, nil
		}
		userPwd := recoverUserPassword(pwd, o[:32], keyLen, h.r)
		key = computeKey(userPwd, o[:32], int32(p), fileID, keyLen, h.r, h.encryptMetadata)
		if checkUser(key, u, fileID, h.r) {
			h.key, h.owner = key, true
			return h, nil
		}
		return nil, ErrBadPassword
	case r == 5 || r == 6:
		h.stream, h.str = methodAESV3, methodAESV3
		if v == 5 {
			var err error
			if h.stream, err = cryptFilterMethod(encrypt, "StmF"); err != nil {
				return nil, err
			}
			if h.str, err = cryptFilterMethod(encrypt, "StrF"); err != nil {
				return nil, err
			}
		}
		oe, _ := encrypt.String("OE")
		ue, _ := encrypt.String("UE")
		key, owner, err := authenticateR6([]byte(password), o, u, oe, ue, h.r)
		if err != nil {
			return nil, err
		}
		h.key, h.owner = key, owner
		return h, nil
	}
	return nil, fmt.Errorf("%w: revision %d", ErrUnsupportedEncryption, r)
}

func cryptFilterMethod(encrypt *raw.DictObj, entry string) (cryptMethod, error) {
	name, ok := encrypt.Name(entry)
	if !ok || name == "Identity" {
		return methodIdentity, nil
	}
	cf, _ := encrypt.Dict("CF")
	filter, ok := cf.Dict(name)
	if !ok {
		return 0, fmt.Errorf("%w: crypt filter %q not defined", ErrUnsupportedEncryption, name)
	}
	cfm, _ := filter.Name("CFM")
	switch cfm {
	case "V2":
		return methodRC4, nil
	case "AESV2":
		return methodAESV2, nil
	case "AESV3":
		return methodAESV3, nil
	case "None", "":
		return methodIdentity, nil
	}
	return 0, fmt.Errorf("%w: crypt method %q", ErrUnsupportedEncryption, cfm)
}

// Owner reports whether the owner password was supplied.
func (h *Handler) Owner() bool { return h.owner }

// EncryptMetadata reports whether XMP metadata streams are encrypted.
func (h *Handler) EncryptMetadata() bool { return h.encryptMetadata }

func (h *Handler) DecryptString(ref raw.ObjectRef, data []byte) ([]byte, error) {
	return h.crypt(h.str, ref, data, false)
}

func (h *Handler) DecryptStream(ref raw.ObjectRef, data []byte) ([]byte, error) {
	return h.crypt(h.stream, ref, data, false)
}

func (h *Handler) EncryptString(ref raw.ObjectRef, data []byte) ([]byte, error) {
	return h.crypt(h.str, ref, data, true)
}

func (h *Handler) EncryptStream(ref raw.ObjectRef, data []byte) ([]byte, error) {
	return h.crypt(h.stream, ref, data, true)
}

func (h *Handler) crypt(m cryptMethod, ref raw.ObjectRef, data []byte, encrypt bool) ([]byte, error) {
	switch m {
	case methodIdentity:
		return data, nil
	case methodRC4:
		return rc4Crypt(h.objectKey(ref, false), data), nil
	case methodAESV2:
		if encrypt {
			return aesEncrypt(h.objectKey(ref, true), data)
		}
		return aesDecrypt(h.objectKey(ref, true), data)
	case methodAESV3:
		if encrypt {
			return aesEncrypt(h.key, data)
		}
		return aesDecrypt(h.key, data)
	}
	return nil, ErrUnsupportedEncryption
}

func (h *Handler) objectKey(ref raw.ObjectRef, aesSalt bool) []byte {
	buf := make([]byte, 0, len(h.key)+9)
	buf = append(buf, h.key...)
	buf = append(buf, byte(ref.Num), byte(ref.Num>>8), byte(ref.Num>>16), byte(ref.Gen), byte(ref.Gen>>8))
	if aesSalt {
		buf = append(buf, 's', 'A', 'l', 'T')
	}
	sum := md5.Sum(buf)
	n := len(h.key) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// computeKey derives the file key from a user password (revisions 2-4).
func computeKey(pwd, o []byte, p int32, fileID []byte, keyLen, r int, encryptMetadata bool) []byte {
	h := md5.New()
	h.Write(padPassword(pwd))
	h.Write(o)
	var pb [4]byte
	binary.LittleEndian.PutUint32(pb[:], uint32(p))
	h.Write(pb[:])
	h.Write(fileID)
	if r >= 4 && !encryptMetadata {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:keyLen])
			key = sum[:]
		}
	}
	return key[:keyLen]
}

// userEntry computes the /U value for key.
func userEntry(key, fileID []byte, r int) []byte {
	if r == 2 {
		return rc4Crypt(key, passwordPadding)
	}
	h := md5.New()
	h.Write(passwordPadding)
	h.Write(fileID)
	val := h.Sum(nil)
	for i := 0; i < 20; i++ {
		val = rc4Crypt(xorKey(key, byte(i)), val)
	}
	return append(val, passwordPadding[:16]...)
}

func checkUser(key, u, fileID []byte, r int) bool {
	want := userEntry(key, fileID, r)
	if r == 2 {
		return bytes.Equal(want, u[:32])
	}
	return bytes.Equal(want[:16], u[:16])
}

func ownerKey(ownerPwd []byte, keyLen, r int) []byte {
	sum := md5.Sum(padPassword(ownerPwd))
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(key)
			key = s[:]
		}
	}
	return key[:keyLen]
}

// recoverUserPassword decrypts /O with a key derived from the owner password.
func recoverUserPassword(ownerPwd, o []byte, keyLen, r int) []byte {
	key := ownerKey(ownerPwd, keyLen, r)
	if r == 2 {
		return rc4Crypt(key, o)
	}
	val := append([]byte(nil), o...)
	for i := 19; i >= 0; i-- {
		val = rc4Crypt(xorKey(key, byte(i)), val)
	}
	return val
}

// ownerEntry computes the /O value.
func ownerEntry(ownerPwd, userPwd []byte, keyLen, r int) []byte {
	key := ownerKey(ownerPwd, keyLen, r)
	val := rc4Crypt(key, padPassword(userPwd))
	if r >= 3 {
		for i := 1; i <= 19; i++ {
			val = rc4Crypt(xorKey(key, byte(i)), val)
		}
	}
	return val
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i, k := range key {
		out[i] = k ^ b
	}
	return out
}

func rc4Crypt(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes: ciphertext shorter than IV")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	if len(body) == 0 {
		return nil, nil
	}
	if len(body)%aes.BlockSize != 0 {
		// Drop a trailing partial block rather than failing the page.
		body = body[:len(body)-len(body)%aes.BlockSize]
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	if n := int(out[len(out)-1]); n > 0 && n <= aes.BlockSize && n <= len(out) {
		out = out[:len(out)-n]
	}
	return out, nil
}

func aesEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	plain := append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, aes.BlockSize+len(plain))
	if _, err := rand.Read(out[:aes.BlockSize]); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], plain)
	return out, nil
}
