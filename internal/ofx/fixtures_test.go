package ofx

// sampleMalformedOFX is a realistic Brazilian bank export: SGML prologue,
// no closing tags on any leaf field, mixed line endings.
const sampleMalformedOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:NONE
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240131120000[-3:BRT]
<LANGUAGE>POR
<FI>
<ORG>BANCO EXEMPLO
<FID>001
</FI>
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>BRL
<BANKACCTFROM>
<BANKID>001
<BRANCHID>1234
<ACCTID>56789-0
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101
<DTEND>20240131
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[-3:BRT]
<TRNAMT>-150.00
<FITID>ABC123
<CHECKNUM>000123
<MEMO>PIX PAGAMENTO
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240120
<TRNAMT>200.00
<FITID>DEF456
<NAME>TED RECEBIDA
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1250.75
<DTASOF>20240131
</LEDGERBAL>
<AVAILBAL>
<BALAMT>1200.00
<DTASOF>20240131
</AVAILBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

// sampleCreditCardOFX exercises the credit-card account block path.
const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML

<OFX>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<CCSTMTRS>
<CURDEF>BRL
<CCACCTFROM>
<ACCTID>5555-4444
</CCACCTFROM>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110
<TRNAMT>-89,90
<FITID>CC001
<MEMO>POSTO IPIRANGA 123
</STMTTRN>
</BANKTRANLIST>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>
`
